// Package api defines the wire-format types shared by the daemon's HTTP API
// and its clients. It translates queue entries, queue stats and worker
// summaries into transport-friendly DTOs so the CLI can render them without
// coupling to store internals.
//
// # Key Types
//
// QueueEntry: transport representation of a queue entry.
//
// DaemonStatus: daemon running state, backend, queue stats and per-worker
// summaries.
//
// # Entry Points
//
// QueueService: queue reads and producer operations returning DTOs, used by
// the daemon handlers and by the CLI when no daemon is reachable.
//
// Client: HTTP client for the daemon API.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. queue.Status is exposed as its lowercase
// string. Timestamps use RFC3339 with milliseconds in UTC.
package api
