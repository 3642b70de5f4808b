package queueaccess

import (
	"context"

	"curator/internal/api"
	"curator/internal/queue"
)

// Access provides queue operations regardless of daemon or direct store backing.
type Access interface {
	Stats(ctx context.Context) (api.QueueStats, error)
	List(ctx context.Context, status string, limit int) ([]api.QueueEntry, error)
	Describe(ctx context.Context, itemID int64) (*api.QueueEntry, error)
	Enqueue(ctx context.Context, req api.EnqueueRequest) (api.EnqueueResponse, error)
	Retry(ctx context.Context, itemID int64, req api.RetryRequest) (api.RetryResponse, error)
}

// NewHTTPAccess returns an Access backed by the daemon API.
func NewHTTPAccess(client *api.Client) Access {
	return &httpAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct store access.
func NewStoreAccess(store queue.Store) Access {
	return &storeAccess{service: api.NewQueueService(store)}
}

type httpAccess struct {
	client *api.Client
}

func (a *httpAccess) Stats(ctx context.Context) (api.QueueStats, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return api.QueueStats{}, err
	}
	return status.QueueStats, nil
}

func (a *httpAccess) List(ctx context.Context, status string, limit int) ([]api.QueueEntry, error) {
	return a.client.QueueList(ctx, status, limit)
}

func (a *httpAccess) Describe(ctx context.Context, itemID int64) (*api.QueueEntry, error) {
	return a.client.Describe(ctx, itemID)
}

func (a *httpAccess) Enqueue(ctx context.Context, req api.EnqueueRequest) (api.EnqueueResponse, error) {
	return a.client.Enqueue(ctx, req)
}

func (a *httpAccess) Retry(ctx context.Context, itemID int64, req api.RetryRequest) (api.RetryResponse, error) {
	return a.client.Retry(ctx, itemID, req)
}

type storeAccess struct {
	service *api.QueueService
}

func (a *storeAccess) Stats(ctx context.Context) (api.QueueStats, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, status string, limit int) ([]api.QueueEntry, error) {
	return a.service.List(ctx, status, limit)
}

func (a *storeAccess) Describe(ctx context.Context, itemID int64) (*api.QueueEntry, error) {
	return a.service.Describe(ctx, itemID)
}

func (a *storeAccess) Enqueue(ctx context.Context, req api.EnqueueRequest) (api.EnqueueResponse, error) {
	return a.service.Enqueue(ctx, req)
}

func (a *storeAccess) Retry(ctx context.Context, itemID int64, req api.RetryRequest) (api.RetryResponse, error) {
	return a.service.Retry(ctx, itemID, req)
}
