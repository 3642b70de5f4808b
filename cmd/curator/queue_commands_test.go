package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"curator/internal/api"
	"curator/internal/queue"
	"curator/internal/testsupport"
)

func TestQueueCommandsAgainstStore(t *testing.T) {
	env := setupOfflineEnv(t)
	ctx := context.Background()

	out, err := runCLI(t, env.configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Queue is empty")

	out, err = runCLI(t, env.configPath, "queue", "enqueue", "42", "--priority", "5")
	if err != nil {
		t.Fatalf("queue enqueue: %v", err)
	}
	requireContains(t, out, "Queued item 42")

	out, err = runCLI(t, env.configPath, "queue", "enqueue", "42")
	if err != nil {
		t.Fatalf("queue enqueue duplicate: %v", err)
	}
	requireContains(t, out, "already has a pending or processing entry")

	if _, _, err := env.store.Enqueue(ctx, 7, 0); err != nil {
		t.Fatalf("seed enqueue: %v", err)
	}

	out, err = runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "0/3")

	out, err = runCLI(t, env.configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")
	requireContains(t, out, "Total")

	out, err = runCLI(t, env.configPath, "queue", "show", "42")
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	requireContains(t, out, "Priority: 5")
	requireContains(t, out, "Attempts: 0/3")

	if _, err := runCLI(t, env.configPath, "queue", "show", "999"); err == nil {
		t.Fatal("expected error for an item that is not queued")
	}
}

func TestQueueRetryCommand(t *testing.T) {
	env := setupOfflineEnv(t, testsupport.WithMaxAttempts(1))
	ctx := context.Background()

	if _, _, err := env.store.Enqueue(ctx, 9, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	entry, err := env.store.Claim(ctx, "cli-test", time.Minute)
	if err != nil || entry == nil {
		t.Fatalf("claim: %v %v", entry, err)
	}
	if status, err := env.store.Fail(ctx, entry.Lease(), "boom"); err != nil || status != queue.StatusFailed {
		t.Fatalf("fail: %s %v", status, err)
	}

	out, err := runCLI(t, env.configPath, "queue", "retry", "9")
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Item 9 is pending")

	if _, err := runCLI(t, env.configPath, "queue", "retry", "10"); err == nil {
		t.Fatal("expected retry of an unknown item to fail")
	}

	out, err = runCLI(t, env.configPath, "queue", "retry", "10", "--enqueue", "--priority", "2")
	if err != nil {
		t.Fatalf("queue retry --enqueue: %v", err)
	}
	requireContains(t, out, "Item 10 is pending")

	stored, err := env.store.GetByItemID(ctx, 10)
	if err != nil || stored == nil {
		t.Fatalf("expected item 10 queued: %v %v", stored, err)
	}
	if stored.Priority != 2 || stored.Status != queue.StatusPending {
		t.Fatalf("unexpected entry %+v", stored)
	}
}

func TestQueueListJSONAndFilters(t *testing.T) {
	env := setupOfflineEnv(t)
	ctx := context.Background()
	for _, item := range []int64{1, 2, 3} {
		if _, _, err := env.store.Enqueue(ctx, item, 0); err != nil {
			t.Fatalf("enqueue %d: %v", item, err)
		}
	}
	if _, _, err := env.store.Enqueue(ctx, 4, 9); err != nil {
		t.Fatalf("enqueue priority item: %v", err)
	}

	out, err := runCLI(t, env.configPath, "--json", "queue", "list", "--limit", "2", "--status", "pending")
	if err != nil {
		t.Fatalf("queue list --json: %v", err)
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode list output: %v (%q)", err, out)
	}
	if len(resp.Entries) != 2 || resp.Entries[0].ItemID != 4 || resp.Entries[1].ItemID != 1 {
		t.Fatalf("unexpected entries %+v", resp.Entries)
	}

	if _, err := runCLI(t, env.configPath, "queue", "list", "--status", "archived"); err == nil {
		t.Fatal("expected error for unknown status filter")
	}
	if _, err := runCLI(t, env.configPath, "queue", "enqueue", "abc"); err == nil {
		t.Fatal("expected error for non-numeric item id")
	}
}

func TestQueueCommandsThroughDaemon(t *testing.T) {
	processor := &blockingProcessor{release: make(chan struct{})}
	env := setupDaemonEnv(t, processor)

	out, err := runCLI(t, env.configPath, "queue", "enqueue", "5")
	if err != nil {
		t.Fatalf("queue enqueue: %v", err)
	}
	requireContains(t, out, "Queued item 5")

	deadline := time.Now().Add(5 * time.Second)
	for {
		out, err = runCLI(t, env.configPath, "queue", "show", "5")
		if err == nil && strings.Contains(out, "Processing") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("item never reached processing: %q %v", out, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	requireContains(t, out, "Locked by: test-worker")

	out, err = runCLI(t, env.configPath, "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	requireContains(t, out, "test-worker")
	requireContains(t, out, "Processing")

	processor.Release()
	deadline = time.Now().Add(5 * time.Second)
	for {
		entry, err := env.store.GetByItemID(context.Background(), 5)
		if err == nil && entry != nil && entry.Status == queue.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("item never completed: %+v %v", entry, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestQueueHealthCommand(t *testing.T) {
	env := setupOfflineEnv(t)

	out, err := runCLI(t, env.configPath, "queue", "health")
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Backend: sqlite")
	requireContains(t, out, "Integrity check: yes")
	requireContains(t, out, "Missing columns: none")
}

func TestBuildQueueStatusRowsSkipsEmptyStatuses(t *testing.T) {
	rows := buildQueueStatusRows(api.QueueStats{Pending: 2, Failed: 1, Total: 3})
	want := [][]string{{"Pending", "2"}, {"Failed", "1"}, {"Total", "3"}}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %v", len(want), rows)
	}
	for i := range want {
		if rows[i][0] != want[i][0] || rows[i][1] != want[i][1] {
			t.Fatalf("row %d: expected %v, got %v", i, want[i], rows[i])
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncate("a much longer message", 10); got != "a much ..." {
		t.Fatalf("unexpected %q", got)
	}
}
