package queue

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned when a transition names an entry that does not exist.
	ErrNotFound = errors.New("queue entry not found")
	// ErrInvalidStatus is returned when a status filter is outside the known set.
	ErrInvalidStatus = errors.New("invalid queue status")
	// ErrInvalidWorkerID is returned when a claim is attempted without a worker identity.
	ErrInvalidWorkerID = errors.New("worker id is required")
	// ErrLeaseLost is returned when a completion or failure report comes from
	// a lease that was reclaimed by another worker. The report is dropped.
	ErrLeaseLost = errors.New("queue lease no longer held")
)

// TruncateReason trims a failure reason to at most limit characters. A
// non-positive limit selects DefaultErrorMessageLimit.
func TruncateReason(reason string, limit int) string {
	if limit <= 0 {
		limit = DefaultErrorMessageLimit
	}
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) <= limit {
		return reason
	}
	runes := []rune(reason)
	return string(runes[:limit])
}

// ReasonFromError renders err for storage as a failure reason.
func ReasonFromError(err error, limit int) string {
	if err == nil {
		return ""
	}
	return TruncateReason(err.Error(), limit)
}

// ValidateStatusFilter rejects status filters outside the closed set.
func ValidateStatusFilter(status Status) error {
	if status == "" {
		return nil
	}
	if _, ok := statusSet[status]; !ok {
		return errors.Join(ErrInvalidStatus, errors.New(string(status)))
	}
	return nil
}
