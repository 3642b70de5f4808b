package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"curator/internal/config"
	"curator/internal/daemon"
	"curator/internal/logging"
	"curator/internal/queue"
	"curator/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.SQLiteStore
	daemon     *daemon.Daemon
	configPath string
}

// blockingProcessor holds every claimed entry until release is closed.
type blockingProcessor struct {
	release chan struct{}
	once    sync.Once
}

func (p *blockingProcessor) Process(ctx context.Context, _ *queue.Entry) error {
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *blockingProcessor) Release() {
	p.once.Do(func() { close(p.release) })
}

// setupOfflineEnv writes a config whose API address refuses connections so
// queue commands fall back to the store.
func setupOfflineEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Paths.APIBind = "127.0.0.1:1"
	env := &cliTestEnv{
		cfg:   cfg,
		store: testsupport.MustOpenStore(t, cfg),
	}
	env.configPath = writeTestConfig(t, cfg)
	return env
}

// setupDaemonEnv starts a daemon with a live API and points the config at it.
func setupDaemonEnv(t *testing.T, processor *blockingProcessor) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	d, err := daemon.New(cfg, store, processor, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		processor.Release()
		_ = d.Stop()
	})

	cfg.Paths.APIBind = d.APIAddress()
	env := &cliTestEnv{cfg: cfg, store: store, daemon: d}
	env.configPath = writeTestConfig(t, cfg)
	return env
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "curator.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
