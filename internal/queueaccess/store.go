package queueaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"curator/internal/api"
	"curator/internal/config"
	"curator/internal/queue"
	"curator/internal/queue/pgqueue"
)

// dialTimeout bounds the daemon probe so the CLI falls back quickly.
const dialTimeout = 2 * time.Second

// OpenStore opens the queue backend selected by cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (queue.Store, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if !cfg.UsesPostgres() {
		store, err := queue.Open(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := pgqueue.Open(ctx, cfg.Queue.PostgresURL, queue.Options{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		ErrorMessageLimit: cfg.Queue.ErrorMessageLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres queue: %w", err)
	}
	return store, nil
}

// DialDaemon returns a client for the configured daemon API once it answers.
func DialDaemon(ctx context.Context, cfg *config.Config) (*api.Client, error) {
	if cfg == nil || cfg.Paths.APIBind == "" {
		return nil, errors.New("daemon api not configured")
	}
	client := api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
	probeCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(probeCtx); err != nil {
		return nil, err
	}
	return client, nil
}

// Open connects to the daemon when it is reachable and to the store otherwise.
func Open(ctx context.Context, cfg *config.Config) (Session, error) {
	return OpenWithFallback(
		func() (*api.Client, error) { return DialDaemon(ctx, cfg) },
		func() (queue.Store, error) { return OpenStore(ctx, cfg) },
	)
}

type healthChecker interface {
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// CheckHealth runs the backend's health diagnostics. Backends without a
// dedicated check report reachability and the entry count.
func CheckHealth(ctx context.Context, store queue.Store) (queue.DatabaseHealth, error) {
	if checker, ok := store.(healthChecker); ok {
		return checker.CheckHealth(ctx)
	}
	var health queue.DatabaseHealth
	if err := store.Ping(ctx); err != nil {
		health.Error = err.Error()
		return health, nil
	}
	health.DatabaseExists = true
	health.DatabaseReadable = true
	health.TableExists = true
	stats, err := store.Stats(ctx)
	if err != nil {
		health.Error = err.Error()
		return health, nil
	}
	health.IntegrityCheck = stats.Consistent()
	health.TotalEntries = stats.Total
	return health, nil
}
