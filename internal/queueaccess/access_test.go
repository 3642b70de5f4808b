package queueaccess_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"curator/internal/api"
	"curator/internal/config"
	"curator/internal/queue"
	"curator/internal/queueaccess"
	"curator/internal/testsupport"
)

func TestOpenWithFallbackUsesStoreWhenDaemonDown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	session, err := queueaccess.OpenWithFallback(
		func() (*api.Client, error) { return nil, errors.New("connection refused") },
		func() (queue.Store, error) { return queueaccess.OpenStore(ctx, cfg) },
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer session.Close()

	if session.Remote {
		t.Fatal("expected direct store session")
	}
	resp, err := session.Access.Enqueue(ctx, api.EnqueueRequest{ItemID: 3})
	if err != nil || !resp.Queued {
		t.Fatalf("enqueue: %+v %v", resp, err)
	}
	stats, err := session.Access.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 1 || stats.Total != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOpenWithFallbackPrefersDaemon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{
			Running:    true,
			QueueStats: api.QueueStats{Pending: 2, Total: 2},
		})
	}))
	defer server.Close()

	opened := false
	session, err := queueaccess.OpenWithFallback(
		func() (*api.Client, error) { return api.NewClient(server.URL, ""), nil },
		func() (queue.Store, error) {
			opened = true
			return nil, errors.New("should not open")
		},
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer session.Close()

	if !session.Remote || opened {
		t.Fatalf("expected daemon session, remote=%v opened=%v", session.Remote, opened)
	}
	stats, err := session.Access.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOpenWithFallbackWithoutOpener(t *testing.T) {
	if _, err := queueaccess.OpenWithFallback(nil, nil); err == nil {
		t.Fatal("expected error without store opener")
	}
}

func TestDialDaemonFailsWhenNothingListens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"
	if _, err := queueaccess.DialDaemon(context.Background(), cfg); err == nil {
		t.Fatal("expected dial error")
	}
	cfg.Paths.APIBind = ""
	if _, err := queueaccess.DialDaemon(context.Background(), cfg); err == nil {
		t.Fatal("expected error for empty bind")
	}
}

func TestCheckHealthSQLite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queueaccess.OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	health, err := queueaccess.CheckHealth(context.Background(), store)
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.DBPath != cfg.QueueDBPath() {
		t.Fatalf("unexpected db path %q", health.DBPath)
	}
}

type pingOnlyStore struct {
	queue.Store
	pingErr error
	stats   queue.Stats
}

func (s pingOnlyStore) Ping(context.Context) error { return s.pingErr }

func (s pingOnlyStore) Stats(context.Context) (queue.Stats, error) { return s.stats, nil }

func TestCheckHealthGenericBackend(t *testing.T) {
	ctx := context.Background()

	health, err := queueaccess.CheckHealth(ctx, pingOnlyStore{stats: queue.Stats{Pending: 1, Total: 1}})
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if !health.DatabaseReadable || health.TotalEntries != 1 || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}

	health, err = queueaccess.CheckHealth(ctx, pingOnlyStore{pingErr: errors.New("down")})
	if err != nil {
		t.Fatalf("check health: %v", err)
	}
	if health.DatabaseReadable || health.Error != "down" {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestOpenStoreRequiresConfig(t *testing.T) {
	var cfg *config.Config
	if _, err := queueaccess.OpenStore(context.Background(), cfg); err == nil {
		t.Fatal("expected error for nil config")
	}
}
