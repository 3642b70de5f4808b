package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a queue entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultMaxAttempts is the claim budget given to new entries.
const DefaultMaxAttempts = 3

// DefaultErrorMessageLimit bounds the stored failure reason, in characters.
const DefaultErrorMessageLimit = 500

// LeaseExpiredReason is recorded when a stale lease is found with no attempts left.
const LeaseExpiredReason = "lease expired"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no worker will pick the entry up without a retry.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusPending, StatusProcessing:
		return false
	default:
		return false
	}
}

// Retriable reports whether Retry may reset an entry in this status.
func (s Status) Retriable() bool {
	return s.IsTerminal()
}

// Entry is one item's scheduling record.
type Entry struct {
	ID           int64
	ItemID       int64
	Status       Status
	Priority     int
	Attempts     int
	MaxAttempts  int
	ErrorMessage string
	LockedAt     *time.Time
	LockedBy     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Lease identifies one claim of an entry. Completion and failure reports
// carry it so a worker whose lease went stale cannot overwrite the lease of
// the worker that reclaimed the entry.
type Lease struct {
	EntryID  int64
	WorkerID string
	// Attempt is the attempts value written by the claim.
	Attempt int
}

// Lease returns the lease token for a claimed entry.
func (e Entry) Lease() Lease {
	return Lease{EntryID: e.ID, WorkerID: e.LockedBy, Attempt: e.Attempts}
}

// Holds reports whether lease is the entry's current lease.
func (e Entry) Holds(lease Lease) bool {
	return e.Status == StatusProcessing && e.LockedBy == lease.WorkerID && e.Attempts == lease.Attempt
}

// UnmatchedReport decides the outcome of a report whose conditional update
// touched no row. current is the entry as it is now, nil when missing. A
// report against an entry that is no longer processing is a no-op; one
// against an entry leased by someone else is ErrLeaseLost.
func UnmatchedReport(op string, lease Lease, current *Entry) (Status, error) {
	if current == nil {
		return "", fmt.Errorf("%s entry %d: %w", op, lease.EntryID, ErrNotFound)
	}
	if current.Status == StatusProcessing {
		return current.Status, fmt.Errorf("%s entry %d: held by %s (attempt %d), reported by %s (attempt %d): %w",
			op, lease.EntryID, current.LockedBy, current.Attempts, lease.WorkerID, lease.Attempt, ErrLeaseLost)
	}
	return current.Status, nil
}

// Locked reports whether the entry currently carries a lease.
func (e Entry) Locked() bool {
	return e.LockedAt != nil || e.LockedBy != ""
}

// AttemptsRemaining returns how many more claims the entry may receive.
func (e Entry) AttemptsRemaining() int {
	if left := e.MaxAttempts - e.Attempts; left > 0 {
		return left
	}
	return 0
}

// Stats is a point-in-time count of entries per status.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Count returns the number of entries in status.
func (s Stats) Count(status Status) int {
	switch status {
	case StatusPending:
		return s.Pending
	case StatusProcessing:
		return s.Processing
	case StatusCompleted:
		return s.Completed
	case StatusFailed:
		return s.Failed
	default:
		return 0
	}
}

// Consistent reports whether the per-status counts add up to Total.
func (s Stats) Consistent() bool {
	return s.Pending+s.Processing+s.Completed+s.Failed == s.Total
}

// ListOptions filters List results.
type ListOptions struct {
	// Status limits results to one status when non-empty.
	Status Status
	// Limit caps the number of entries; zero selects DefaultListLimit.
	Limit int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// Normalize applies default and maximum limits.
func (o ListOptions) Normalize() ListOptions {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultListLimit
	case o.Limit > MaxListLimit:
		o.Limit = MaxListLimit
	}
	return o
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalEntries     int
	Error            string
}
