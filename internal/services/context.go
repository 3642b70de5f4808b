package services

import "context"

type contextKey string

const (
	entryIDKey   contextKey = "entry_id"
	itemIDKey    contextKey = "item_id"
	workerIDKey  contextKey = "worker_id"
	requestIDKey contextKey = "request_id"
)

// WithEntryID annotates context with the queue entry identifier.
func WithEntryID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, entryIDKey, id)
}

// EntryIDFromContext extracts the queue entry identifier if present.
func EntryIDFromContext(ctx context.Context) (int64, bool) {
	return int64FromContext(ctx, entryIDKey)
}

// WithItemID annotates context with the media item identifier.
func WithItemID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, itemIDKey, id)
}

// ItemIDFromContext extracts the media item identifier if present.
func ItemIDFromContext(ctx context.Context) (int64, bool) {
	return int64FromContext(ctx, itemIDKey)
}

func int64FromContext(ctx context.Context, key contextKey) (int64, bool) {
	v := ctx.Value(key)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithWorkerID annotates context with the worker holding the item's lease.
func WithWorkerID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, workerIDKey, id)
}

// WorkerIDFromContext returns the worker identity if present.
func WorkerIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(workerIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
