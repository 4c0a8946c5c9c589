// Package api talks to the JSON content API: listing pages, post metadata
// and the file servers the metadata points at.
//
// Three pooled HTTP clients (go-cleanhttp) back a Client. Listing pages and
// file transfers are sent once and classified by their callers; post
// metadata is sent through go-retryablehttp with a transport retry budget.
// API requests are paced by a ratelimit.Limiter, file transfers are not.
package api
