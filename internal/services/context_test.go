package services_test

import (
	"context"
	"testing"

	"curator/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithEntryID(ctx, 7)
	ctx = services.WithItemID(ctx, 42)
	ctx = services.WithWorkerID(ctx, "worker-1a2b3c4d")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.EntryIDFromContext(ctx); !ok || id != 7 {
		t.Fatalf("unexpected entry id: %v %v", id, ok)
	}
	if id, ok := services.ItemIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected item id: %v %v", id, ok)
	}
	if worker, ok := services.WorkerIDFromContext(ctx); !ok || worker != "worker-1a2b3c4d" {
		t.Fatalf("unexpected worker id: %v %v", worker, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankWorkerPreservesContext(t *testing.T) {
	ctx := services.WithWorkerID(context.Background(), "")
	if _, ok := services.WorkerIDFromContext(ctx); ok {
		t.Fatal("expected no worker value")
	}
	if _, ok := services.EntryIDFromContext(ctx); ok {
		t.Fatal("expected no entry value")
	}
}
