// Package ratelimit paces API requests (listing pages and post metadata) so a
// crawl with many workers does not trip the server's 429 responses.
//
// File transfers are not paced here; they react to 429 themselves.
//
// Two algorithms are available behind the Limiter interface:
//
//   - TokenBucket: a fixed capacity that refills fully once per period,
//     allowing bursts followed by quiet periods.
//   - SlidingWindow: at most N requests within any moving window.
//
// Usage:
//
//	limiter := ratelimit.New("token_bucket", 120, time.Minute)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // context cancelled
//	}
package ratelimit
