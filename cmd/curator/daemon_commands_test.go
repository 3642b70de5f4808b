package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"curator/internal/api"
)

func TestDaemonStatusOffline(t *testing.T) {
	env := setupOfflineEnv(t)
	if _, _, err := env.store.Enqueue(context.Background(), 3, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	out, err := runCLI(t, env.configPath, "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	requireContains(t, out, "not running")
	requireContains(t, out, env.cfg.QueueDBPath())
	requireContains(t, out, "Pending")

	out, err = runCLI(t, env.configPath, "--json", "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v (%q)", err, out)
	}
	if status.Running || status.QueueStats.Pending != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestDaemonStatusThroughAPI(t *testing.T) {
	processor := &blockingProcessor{release: make(chan struct{})}
	env := setupDaemonEnv(t, processor)

	out, err := runCLI(t, env.configPath, "--json", "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v (%q)", err, out)
	}
	if !status.Running || len(status.Workers) != 1 || status.Workers[0].ID != "test-worker" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestDaemonStopWhenNotRunning(t *testing.T) {
	env := setupOfflineEnv(t)

	out, err := runCLI(t, env.configPath, "daemon", "stop")
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestDaemonLogsFiltersByItem(t *testing.T) {
	env := setupOfflineEnv(t)
	content := `{"level":"info","msg":"processing entry","item_id":42}
{"level":"info","msg":"processing entry","item_id":7}
{"level":"error","msg":"entry failed permanently","item_id":42}
`
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	if err := os.WriteFile(env.cfg.LogPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, err := runCLI(t, env.configPath, "daemon", "logs", "--item", "42")
	if err != nil {
		t.Fatalf("daemon logs: %v", err)
	}
	if strings.Count(out, "\n") != 2 || strings.Contains(out, `"item_id":7`) {
		t.Fatalf("unexpected log output %q", out)
	}

	out, err = runCLI(t, env.configPath, "daemon", "logs", "-n", "1")
	if err != nil {
		t.Fatalf("daemon logs -n 1: %v", err)
	}
	requireContains(t, out, "entry failed permanently")
}
