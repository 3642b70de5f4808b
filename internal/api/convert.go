package api

import (
	"time"

	"curator/internal/queue"
	"curator/internal/worker"
)

// FromQueueEntry converts a queue record to its API representation.
func FromQueueEntry(entry *queue.Entry) QueueEntry {
	if entry == nil {
		return QueueEntry{}
	}
	return QueueEntry{
		ID:           entry.ID,
		ItemID:       entry.ItemID,
		Status:       string(entry.Status),
		Priority:     entry.Priority,
		Attempts:     entry.Attempts,
		MaxAttempts:  entry.MaxAttempts,
		ErrorMessage: entry.ErrorMessage,
		LockedBy:     entry.LockedBy,
		LockedAt:     formatOptional(entry.LockedAt),
		CreatedAt:    formatTime(entry.CreatedAt),
		UpdatedAt:    formatTime(entry.UpdatedAt),
		CompletedAt:  formatOptional(entry.CompletedAt),
	}
}

// FromQueueEntries converts a slice of queue records.
func FromQueueEntries(entries []*queue.Entry) []QueueEntry {
	out := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		out = append(out, FromQueueEntry(entry))
	}
	return out
}

// FromStats converts queue stats.
func FromStats(stats queue.Stats) QueueStats {
	return QueueStats{
		Pending:    stats.Pending,
		Processing: stats.Processing,
		Completed:  stats.Completed,
		Failed:     stats.Failed,
		Total:      stats.Total,
	}
}

// Count returns the number of entries in status.
func (s QueueStats) Count(status queue.Status) int {
	return queue.Stats{
		Pending:    s.Pending,
		Processing: s.Processing,
		Completed:  s.Completed,
		Failed:     s.Failed,
		Total:      s.Total,
	}.Count(status)
}

// FromWorkerSummary converts a worker summary.
func FromWorkerSummary(summary worker.Summary) WorkerStatus {
	status := WorkerStatus{
		ID:        summary.ID,
		State:     string(summary.State),
		StartedAt: formatTime(summary.StartedAt),
		Claimed:   summary.Claimed,
		Completed: summary.Completed,
		Retried:   summary.Retried,
		Failed:    summary.Failed,
		LastError: summary.LastError,
	}
	if summary.LastEntry != nil {
		entry := FromQueueEntry(summary.LastEntry)
		status.LastEntry = &entry
	}
	return status
}

// ParseTime parses a timestamp written by this package. It returns the zero
// time for empty or malformed input.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
