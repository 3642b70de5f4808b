package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case BackendSQLite:
	case BackendPostgres:
		if c.Queue.PostgresURL == "" {
			return fmt.Errorf("queue.postgres_url is required when queue.backend is %q (or set %s)", BackendPostgres, postgresURLEnv)
		}
	default:
		return fmt.Errorf("queue.backend must be %q or %q, got %q", BackendSQLite, BackendPostgres, c.Queue.Backend)
	}
	if c.Queue.MaxAttempts <= 0 {
		return errors.New("queue.max_attempts must be positive")
	}
	if c.Queue.LockTimeout <= 0 {
		return errors.New("queue.lock_timeout must be positive")
	}
	if c.Queue.ErrorMessageLimit <= 0 || c.Queue.ErrorMessageLimit > maxConfigurableErrorMessage {
		return fmt.Errorf("queue.error_message_limit must be between 1 and %d", maxConfigurableErrorMessage)
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.Count <= 0 || c.Worker.Count > maxConfigurableWorkerCount {
		return fmt.Errorf("worker.count must be between 1 and %d", maxConfigurableWorkerCount)
	}
	if c.Worker.PollInterval <= 0 {
		return errors.New("worker.poll_interval must be positive")
	}
	if c.Worker.StopTimeout <= 0 {
		return errors.New("worker.stop_timeout must be positive")
	}
	if strings.ContainsAny(c.Worker.ID, " \t\n/") {
		return errors.New("worker.id must not contain whitespace or slashes")
	}
	// A lease shorter than one poll would let idle workers steal live items.
	if c.Queue.LockTimeout <= c.Worker.PollInterval {
		return errors.New("queue.lock_timeout must be greater than worker.poll_interval")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.Endpoint == "" {
		return nil
	}
	if !strings.HasPrefix(c.Analysis.Endpoint, "http://") && !strings.HasPrefix(c.Analysis.Endpoint, "https://") {
		return errors.New("analysis.endpoint must be an http(s) URL")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return errors.New("notifications.ntfy_topic must be an http(s) URL")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.StatsSchedule != "" {
		if _, err := cron.ParseStandard(c.Logging.StatsSchedule); err != nil {
			return fmt.Errorf("logging.stats_schedule: %w", err)
		}
	}
	return nil
}
