package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueEntry describes a queue entry in a transport-friendly format.
type QueueEntry struct {
	ID           int64  `json:"id"`
	ItemID       int64  `json:"itemId"`
	Status       string `json:"status"`
	Priority     int    `json:"priority"`
	Attempts     int    `json:"attempts"`
	MaxAttempts  int    `json:"maxAttempts"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	LockedBy     string `json:"lockedBy,omitempty"`
	LockedAt     string `json:"lockedAt,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

// QueueStats is the per-status entry count.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// WorkerStatus summarizes one worker loop.
type WorkerStatus struct {
	ID        string      `json:"id"`
	State     string      `json:"state"`
	StartedAt string      `json:"startedAt,omitempty"`
	Claimed   int         `json:"claimed"`
	Completed int         `json:"completed"`
	Retried   int         `json:"retried"`
	Failed    int         `json:"failed"`
	LastError string      `json:"lastError,omitempty"`
	LastEntry *QueueEntry `json:"lastEntry,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	Backend     string         `json:"backend"`
	QueueDBPath string         `json:"queueDbPath,omitempty"`
	LockFiles   []string       `json:"lockFiles,omitempty"`
	QueueStats  QueueStats     `json:"queueStats"`
	Workers     []WorkerStatus `json:"workers"`
	LastError   string         `json:"lastError,omitempty"`
}

// QueueListResponse wraps a collection of queue entries for API responses.
type QueueListResponse struct {
	Entries []QueueEntry `json:"entries"`
}

// EnqueueRequest asks for an item to be queued.
type EnqueueRequest struct {
	ItemID   int64 `json:"itemId"`
	Priority int   `json:"priority"`
}

// EnqueueResponse reports whether a new entry was created.
type EnqueueResponse struct {
	EntryID int64 `json:"entryId,omitempty"`
	Queued  bool  `json:"queued"`
}

// RetryRequest resets an item's entry. With Enqueue set, an item that was
// never queued is enqueued at Priority instead.
type RetryRequest struct {
	Enqueue  bool `json:"enqueue"`
	Priority int  `json:"priority"`
}

// RetryResponse reports whether the item is now pending.
type RetryResponse struct {
	ItemID  int64 `json:"itemId"`
	Pending bool  `json:"pending"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
