package api

import (
	"context"
	"errors"
	"fmt"

	"curator/internal/queue"
)

// QueueStore abstracts the queue operations the service needs.
type QueueStore interface {
	Enqueue(ctx context.Context, itemID int64, priority int) (int64, bool, error)
	Retry(ctx context.Context, itemID int64) (bool, error)
	List(ctx context.Context, opts queue.ListOptions) ([]*queue.Entry, error)
	Stats(ctx context.Context) (queue.Stats, error)
	GetByItemID(ctx context.Context, itemID int64) (*queue.Entry, error)
}

// QueueService exposes queue operations returning API DTOs.
type QueueService struct {
	store QueueStore
}

// NewQueueService constructs a QueueService around the provided store.
func NewQueueService(store QueueStore) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

var errNoStore = errors.New("queue store unavailable")

// List returns entries filtered by status, highest priority first.
func (s *QueueService) List(ctx context.Context, status string, limit int) ([]QueueEntry, error) {
	if s == nil || s.store == nil {
		return nil, errNoStore
	}
	opts := queue.ListOptions{Limit: limit}
	if status != "" {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			return nil, fmt.Errorf("%w: %s", queue.ErrInvalidStatus, status)
		}
		opts.Status = parsed
	}
	entries, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	return FromQueueEntries(entries), nil
}

// Stats returns queue summary counts.
func (s *QueueService) Stats(ctx context.Context) (QueueStats, error) {
	if s == nil || s.store == nil {
		return QueueStats{}, errNoStore
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	return FromStats(stats), nil
}

// Describe fetches the entry for an item. It returns nil when the item was
// never queued.
func (s *QueueService) Describe(ctx context.Context, itemID int64) (*QueueEntry, error) {
	if s == nil || s.store == nil {
		return nil, errNoStore
	}
	entry, err := s.store.GetByItemID(ctx, itemID)
	if err != nil || entry == nil {
		return nil, err
	}
	dto := FromQueueEntry(entry)
	return &dto, nil
}

// Enqueue queues an item. Duplicates report Queued=false.
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResponse, error) {
	if s == nil || s.store == nil {
		return EnqueueResponse{}, errNoStore
	}
	if req.ItemID <= 0 {
		return EnqueueResponse{}, errors.New("item id must be positive")
	}
	id, queued, err := s.store.Enqueue(ctx, req.ItemID, req.Priority)
	if err != nil {
		return EnqueueResponse{}, err
	}
	return EnqueueResponse{EntryID: id, Queued: queued}, nil
}

// Retry resets a completed or failed entry. With req.Enqueue, an item that
// has no entry is enqueued instead.
func (s *QueueService) Retry(ctx context.Context, itemID int64, req RetryRequest) (RetryResponse, error) {
	if s == nil || s.store == nil {
		return RetryResponse{}, errNoStore
	}
	resp := RetryResponse{ItemID: itemID}
	if !req.Enqueue {
		ok, err := s.store.Retry(ctx, itemID)
		if err != nil {
			return resp, err
		}
		resp.Pending = ok
		return resp, nil
	}
	ok, err := queue.Reprocess(ctx, s.store, itemID, req.Priority)
	if err != nil {
		return resp, err
	}
	resp.Pending = ok
	return resp, nil
}
