// Package tasks implements deferred execution of work registered during an
// HTTP request. Handlers append closures to a per-request list; after the
// response has been written, the list is handed to a dispatcher that runs
// each closure in its own goroutine. Outcomes are fire-and-forget: they are
// visible through logs, task records, and completion events, never through
// the response that scheduled them.
package tasks
