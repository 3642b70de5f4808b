package queue

import (
	"context"
	"time"
)

// Store is the durable queue contract shared by the SQLite and PostgreSQL
// backends.
type Store interface {
	// Enqueue adds a pending entry for itemID. queued is false when the item
	// already has an entry; that is not an error.
	Enqueue(ctx context.Context, itemID int64, priority int) (entryID int64, queued bool, err error)
	// Retry resets a completed or failed entry to pending with a fresh
	// attempt budget. It reports false when no retriable entry exists.
	Retry(ctx context.Context, itemID int64) (bool, error)
	// List returns entries ordered by priority (highest first) then age.
	List(ctx context.Context, opts ListOptions) ([]*Entry, error)
	// Stats counts entries per status in a single query.
	Stats(ctx context.Context) (Stats, error)
	// Claim atomically takes the best eligible entry for workerID. It returns
	// nil when nothing is eligible.
	Claim(ctx context.Context, workerID string, lockTimeout time.Duration) (*Entry, error)
	// Complete marks the leased entry completed. Reporting against an entry
	// that is no longer processing is a no-op; reporting against an entry
	// now leased by another worker returns ErrLeaseLost.
	Complete(ctx context.Context, lease Lease) error
	// Fail records reason and returns the entry to pending, or marks it
	// failed when its attempts are spent. The resulting status is returned.
	// Lease mismatches behave as for Complete.
	Fail(ctx context.Context, lease Lease, reason string) (Status, error)
	GetByID(ctx context.Context, entryID int64) (*Entry, error)
	GetByItemID(ctx context.Context, itemID int64) (*Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// Options tunes store behaviour shared by both backends.
type Options struct {
	// MaxAttempts is written to new entries. Zero selects DefaultMaxAttempts.
	MaxAttempts int
	// ErrorMessageLimit bounds stored failure reasons. Zero selects
	// DefaultErrorMessageLimit.
	ErrorMessageLimit int
	// ClaimRounds bounds how many candidates a SQLite claim tries before
	// giving up for this poll. Zero selects DefaultClaimRounds.
	ClaimRounds int
	// Now overrides the clock. Used by tests to age leases.
	Now func() time.Time
}

// DefaultClaimRounds is the compare-and-swap round limit for SQLite claims.
const DefaultClaimRounds = 16

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.ErrorMessageLimit <= 0 {
		o.ErrorMessageLimit = DefaultErrorMessageLimit
	}
	if o.ClaimRounds <= 0 {
		o.ClaimRounds = DefaultClaimRounds
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Producer is the subset of Store used by code that only adds work.
type Producer interface {
	Enqueue(ctx context.Context, itemID int64, priority int) (int64, bool, error)
	Retry(ctx context.Context, itemID int64) (bool, error)
}

// Reprocess retries the item's entry, or enqueues it when the item was never
// queued. It reports whether the item is now pending.
func Reprocess(ctx context.Context, store Producer, itemID int64, priority int) (bool, error) {
	retried, err := store.Retry(ctx, itemID)
	if err != nil {
		return false, err
	}
	if retried {
		return true, nil
	}
	_, queued, err := store.Enqueue(ctx, itemID, priority)
	if err != nil {
		return false, err
	}
	return queued, nil
}
