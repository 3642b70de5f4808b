package worker

import (
	"time"

	"curator/internal/queue"
)

// Summary is a snapshot of what a worker has done since it was created.
// Retried counts failed attempts that returned the entry to pending.
type Summary struct {
	ID        string
	State     State
	StartedAt time.Time
	Claimed   int
	Completed int
	Retried   int
	Failed    int
	LastError string
	LastEntry *queue.Entry
}

// Summary returns the latest counters.
func (w *Worker) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	summary := w.summary
	summary.ID = w.id
	summary.State = w.state
	if summary.LastEntry != nil {
		last := *summary.LastEntry
		summary.LastEntry = &last
	}
	return summary
}

func (w *Worker) recordClaim(entry *queue.Entry) {
	w.mu.Lock()
	w.summary.Claimed++
	snapshot := *entry
	w.summary.LastEntry = &snapshot
	w.mu.Unlock()
}

func (w *Worker) recordOutcome(entry *queue.Entry, status queue.Status, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch status {
	case queue.StatusCompleted:
		w.summary.Completed++
	case queue.StatusFailed:
		w.summary.Failed++
	case queue.StatusPending:
		w.summary.Retried++
	case queue.StatusProcessing:
	}
	if err != nil {
		w.summary.LastError = err.Error()
	}
	snapshot := *entry
	snapshot.Status = status
	w.summary.LastEntry = &snapshot
}

func (w *Worker) recordError(err error) {
	w.mu.Lock()
	w.summary.LastError = err.Error()
	w.mu.Unlock()
}
