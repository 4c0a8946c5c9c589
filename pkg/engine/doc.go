// Package engine ties the pipeline together: it crawls an address for post
// ids, hands them to a fixed pool of workers, and has each worker fetch a
// post's attachments and transfer them one after another.
//
// Only address and crawl failures end a run early. A post whose metadata
// cannot be fetched is recorded as failed by its web URL; a file whose
// retries run out is recorded as failed by its URL; filtered and unresolvable
// files are recorded as skipped.
//
//	client := api.NewClient(api.Options{Logger: log})
//	e := engine.New(client, opts)
//	rep, err := e.Run(ctx, addr)
package engine
