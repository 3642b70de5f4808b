// Package queue persists processing entries for media items and exposes the
// claim protocol workers use to take exclusive ownership of them.
//
// Store is the backend-neutral contract. SQLiteStore implements it on a local
// SQLite database (the default backend); the pgqueue subpackage implements it
// on PostgreSQL for deployments with workers on several hosts.
//
// An entry moves pending → processing on claim, then to completed on success
// or back to pending (attempts left) or failed (budget exhausted) on failure.
// Claims count as attempts, so a worker that dies mid-item spends one. A
// processing entry whose lease is older than the lock timeout is eligible to
// be claimed again; one that has no attempts left is failed instead.
//
// Entries are never deleted by this package. Retry resets a completed or failed
// entry so it can be processed again. Schema changes bump schemaVersion in
// schema.go; operators delete the database to adopt a new SQLite schema.
package queue
