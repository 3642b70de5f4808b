package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"curator/internal/config"
	"curator/internal/daemon"
	"curator/internal/daemonctl"
	"curator/internal/enrichment"
	"curator/internal/logging"
	"curator/internal/queueaccess"
	"curator/internal/worker"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// Processor overrides the enrichment processor. Used by tests.
	Processor worker.Processor
}

// Run starts the curator daemon and blocks until cmdCtx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := daemonctl.PIDPath(cfg)
	if pid, _ := daemonctl.RunningPID(cfg); pid > 0 && pid != os.Getpid() {
		return fmt.Errorf("curator daemon already running (pid %d)", pid)
	}
	if err := daemonctl.WritePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logConfigSnapshot(logger, cfg)

	store, err := queueaccess.OpenStore(signalCtx, cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open queue store", "queue_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check [queue] backend settings and database access"),
		)
		return err
	}

	processor := opts.Processor
	if processor == nil {
		processor = enrichment.NewFromConfig(cfg, logger)
	}

	d, err := daemon.New(cfg, store, processor, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer func() {
		if closeErr := d.Close(); closeErr != nil {
			logger.Warn("daemon close reported errors", logging.Error(closeErr))
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check worker locks and the api bind address"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("curator daemon shutting down")
	return nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("backend", cfg.Queue.Backend),
		logging.Int("workers", cfg.Worker.Count),
		logging.Int("max_attempts", cfg.Queue.MaxAttempts),
		logging.Duration("lock_timeout", cfg.LockTimeout()),
		logging.Duration("poll_interval", cfg.PollInterval()),
		logging.Bool("analysis_configured", strings.TrimSpace(cfg.Analysis.Endpoint) != ""),
		logging.Bool("api_enabled", strings.TrimSpace(cfg.Paths.APIBind) != ""),
		logging.Bool("api_token_present", strings.TrimSpace(cfg.Paths.APIToken) != ""),
	)
}
