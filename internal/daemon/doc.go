// Package daemon coordinates the long-running Curator process.
//
// It starts the configured number of worker loops against one queue store,
// holding a flock per worker id so two processes never lease under the same
// identity. Alongside the workers it runs a cron-scheduled queue stats report
// and an optional HTTP API (status, queue listing, enqueue, retry) guarded by
// a bearer token.
//
// Keep orchestration logic here: item processing lives behind
// worker.Processor and the queue semantics live in the store.
package daemon
