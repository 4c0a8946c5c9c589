// Package transfer downloads one file over HTTP with resume support.
//
// A transfer first looks at the destination. When it already holds K bytes
// the request carries "Range: bytes=K-" and the body is appended; a 416 at
// that point means the file was finished by an earlier run. Responses are
// classified as follows:
//
//	200, 206         stream the body to disk
//	416 (resumed)    done, nothing new written
//	429              wait RateLimitDelay, no retry budget spent
//	other            spend a content retry, wait ErrorDelay
//	request error    spend a transport retry, wait ErrorDelay
//	stream dropped   spend a transport retry, wait ReconnectDelay, resume
//
// Write failures are retried in place while the write budget lasts.
package transfer
