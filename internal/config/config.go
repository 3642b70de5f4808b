package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Queue contains configuration for the processing queue store.
type Queue struct {
	// Backend selects the store: "sqlite" (default) or "postgres".
	Backend           string `toml:"backend"`
	PostgresURL       string `toml:"postgres_url"`
	MaxAttempts       int    `toml:"max_attempts"`
	LockTimeout       int    `toml:"lock_timeout"`
	ErrorMessageLimit int    `toml:"error_message_limit"`
	ListLimit         int    `toml:"list_limit"`
}

// Worker contains configuration for the daemon's worker loops.
type Worker struct {
	// ID names this process in queue leases. Empty generates one per start.
	ID            string `toml:"id"`
	Count         int    `toml:"count"`
	PollInterval  int    `toml:"poll_interval"`
	StopTimeout   int    `toml:"stop_timeout"`
	ReportTimeout int    `toml:"report_timeout"`
}

// Analysis contains connection settings for the external analysis service.
type Analysis struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains ntfy settings for failure alerts.
type Notifications struct {
	// NtfyTopic is the full topic URL. Empty disables notifications.
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// StatsSchedule is a cron spec for periodic queue stats log lines.
	// Empty disables the report.
	StatsSchedule string `toml:"stats_schedule"`
}

// Config encapsulates all configuration values for Curator.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories, API bind address and token
//   - Queue: store backend, attempt budget, lease timeout
//   - Worker: worker identity, count, poll and shutdown timing
//   - Analysis: external analysis pipeline endpoint
//   - Notifications: ntfy topic for failure alerts
//   - Logging: log format, level, and stats reporting schedule
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Worker        Worker        `toml:"worker"`
	Analysis      Analysis      `toml:"analysis"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("curator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogPath returns the daemon's JSON log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "curator.log")
}

// QueueDBPath returns the SQLite queue database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// UsesPostgres reports whether the queue lives in PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.Queue.Backend == BackendPostgres
}

// LockTimeout returns the lease age after which a processing entry is stale.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Queue.LockTimeout) * time.Second
}

// PollInterval returns how long an idle worker sleeps between claims.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.PollInterval) * time.Second
}

// StopTimeout returns how long shutdown waits for in-flight items.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Worker.StopTimeout) * time.Second
}

// ReportTimeout bounds the store call that records an item's outcome.
func (c *Config) ReportTimeout() time.Duration {
	return time.Duration(c.Worker.ReportTimeout) * time.Second
}

// NotifyTimeout returns the ntfy request timeout.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// AnalysisTimeout bounds one analysis request.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Redacted returns a copy with secrets masked for display.
func (c Config) Redacted() Config {
	mask := func(value string) string {
		if value == "" {
			return ""
		}
		return "********"
	}
	c.Paths.APIToken = mask(c.Paths.APIToken)
	c.Analysis.APIKey = mask(c.Analysis.APIKey)
	c.Notifications.NtfyTopic = redactURL(c.Notifications.NtfyTopic)
	if c.Queue.PostgresURL != "" {
		c.Queue.PostgresURL = redactURL(c.Queue.PostgresURL)
	}
	return c
}

// Encode renders the configuration as TOML.
func (c Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
