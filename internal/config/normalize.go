package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeAnalysis()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CURATOR_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeQueue() error {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	switch c.Queue.Backend {
	case "":
		c.Queue.Backend = defaultQueueBackend
	case "postgresql", "pg":
		c.Queue.Backend = BackendPostgres
	}
	c.Queue.PostgresURL = strings.TrimSpace(c.Queue.PostgresURL)
	if c.Queue.Backend == BackendPostgres && c.Queue.PostgresURL == "" {
		if value, ok := os.LookupEnv(postgresURLEnv); ok && strings.TrimSpace(value) != "" {
			c.Queue.PostgresURL = strings.TrimSpace(value)
		} else if url, err := postgresURLFromEnv(postgresEnvPrefix); err == nil {
			c.Queue.PostgresURL = url
		}
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = defaultQueueMaxAttempts
	}
	if c.Queue.LockTimeout == 0 {
		c.Queue.LockTimeout = defaultQueueLockTimeout
	}
	if c.Queue.ErrorMessageLimit == 0 {
		c.Queue.ErrorMessageLimit = defaultErrorMessageLimit
	}
	if c.Queue.ListLimit <= 0 {
		c.Queue.ListLimit = defaultQueueListLimit
	}
	return nil
}

func (c *Config) normalizeWorker() {
	c.Worker.ID = strings.TrimSpace(c.Worker.ID)
	if c.Worker.Count == 0 {
		c.Worker.Count = defaultWorkerCount
	}
	if c.Worker.ReportTimeout <= 0 {
		c.Worker.ReportTimeout = defaultWorkerReportTimeout
	}
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.Endpoint = strings.TrimRight(strings.TrimSpace(c.Analysis.Endpoint), "/")
	c.Analysis.APIKey = strings.TrimSpace(c.Analysis.APIKey)
	if c.Analysis.APIKey == "" {
		if value, ok := os.LookupEnv(analysisAPIKeyEnv); ok {
			c.Analysis.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = defaultAnalysisTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.StatsSchedule = strings.TrimSpace(c.Logging.StatsSchedule)
}
