package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "console"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("queue stats", logging.Int("pending", 3))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "curator.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", content, err)
	}
	if record["msg"] != "queue stats" || record["level"] != "info" {
		t.Fatalf("unexpected record: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format: "console",
		Level:  "info",
		Output: logPath,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if strings.Contains(string(content), "\x1b[") {
		t.Fatalf("expected no colour codes in file output, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format: "console",
		Level:  "debug",
		Output: logPath,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Output: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.NewComponentLogger(logger, "worker").Warn("claim failed",
		logging.Int64(logging.FieldEntryID, 9),
		logging.String("reason", "database is locked"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"WARN worker: claim failed", "entry_id=9", `reason="database is locked"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestConsoleLoggerPrefixesWorkerAndLeadsWithItem(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "worker.log")
	logger, err := logging.New(logging.Options{Format: "console", Output: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithWorkerID(services.WithItemID(context.Background(), 7), "w-1")
	log := logging.WithContext(ctx, logging.NewComponentLogger(logger, "worker"))
	log.Info("entry completed", logging.Int(logging.FieldAttempt, 2))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO worker[w-1]: entry completed item_id=7 attempt=2") {
		t.Fatalf("unexpected console line %q", line)
	}
	if strings.Contains(line, "worker_id=") {
		t.Fatalf("worker id should only appear in the prefix: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "invalid", Output: logPath})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug to be disabled")
	}
	if !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info to be enabled")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithEntryID(ctx, 5)
	ctx = services.WithItemID(ctx, 123)
	ctx = services.WithWorkerID(ctx, "worker-abc")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	checks := map[string]any{
		logging.FieldEntryID:       float64(5),
		logging.FieldItemID:        float64(123),
		logging.FieldWorkerID:      "worker-abc",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, want := range checks {
		if record[key] != want {
			t.Fatalf("field %s = %v, want %v", key, record[key], want)
		}
	}
}

func TestTeeLoggerDuplicatesRecords(t *testing.T) {
	var first, second bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&first, nil))
	logger := logging.TeeLogger(base, slog.NewJSONHandler(&second, nil), nil)

	logger.Info("tee message", logging.String("k", "v"))

	for name, buf := range map[string]*bytes.Buffer{"first": &first, "second": &second} {
		if !strings.Contains(buf.String(), "tee message") {
			t.Fatalf("%s handler missed record: %q", name, buf.String())
		}
	}
}

func TestTeeHandlerWithNoHandlersDiscards(t *testing.T) {
	h := logging.TeeHandler(nil, nil)
	if h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected no-op handler")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "lease expired", "lease_expired", logging.String(logging.FieldImpact, "item failed"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldEventType] != "lease_expired" {
		t.Fatalf("unexpected event type: %v", record[logging.FieldEventType])
	}
	if record[logging.FieldImpact] != "item failed" {
		t.Fatalf("expected caller impact to be kept, got %v", record[logging.FieldImpact])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error hint")
	}
}
