package testsupport

import (
	"testing"

	"curator/internal/config"
	"curator/internal/queue"
)

// MustOpenStore opens a SQLite queue store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.SQLiteStore {
	t.Helper()
	return MustOpenStoreWithClock(t, cfg, nil)
}

// MustOpenStoreWithClock opens a store whose timestamps come from clock.
func MustOpenStoreWithClock(t testing.TB, cfg *config.Config, clock *Clock) *queue.SQLiteStore {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	opts := queue.Options{
		MaxAttempts:       cfg.Queue.MaxAttempts,
		ErrorMessageLimit: cfg.Queue.ErrorMessageLimit,
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	store, err := queue.OpenPath(cfg.QueueDBPath(), opts)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
