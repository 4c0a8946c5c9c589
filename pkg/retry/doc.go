// Package retry runs operations under a bounded retry budget with a pluggable
// backoff, and provides the context-aware Wait used for every fixed delay in
// the download pipeline.
//
//	err := retry.Do(ctx, retry.Config{
//	    Retries: 3,
//	    Backoff: retry.ConstantBackoff{Delay: 2 * time.Second},
//	}, func() error {
//	    return fetchOnce()
//	})
package retry
