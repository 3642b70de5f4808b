package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"curator/internal/api"
	"curator/internal/config"
	"curator/internal/queueaccess"
)

// ErrDaemonNotRunning indicates no live daemon process was found.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// PIDPath returns where the daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "curator.pid")
}

// WritePIDFile records the current process id at path.
func WritePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid stored at path, or 0 when the file is missing.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pidStr := strings.TrimSpace(string(data))
	if pidStr == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q holds %q", path, pidStr)
	}
	return pid, nil
}

// ProcessAlive reports whether pid names a live process. A process owned by
// another user counts as alive.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// RunningPID returns the daemon pid when its pid file names a live process.
func RunningPID(cfg *config.Config) (int, error) {
	pid, err := ReadPID(PIDPath(cfg))
	if err != nil {
		return 0, err
	}
	if !ProcessAlive(pid) {
		return 0, nil
	}
	return pid, nil
}

// Launch starts a detached curator daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon", "run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// EnsureStarted launches the daemon unless one is already running, then
// waits until its pid file names a live process.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if pid, err := RunningPID(cfg); err == nil && pid > 0 {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	pid, err := waitForPID(ctx, cfg, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: pid}, nil
}

func waitForPID(ctx context.Context, cfg *config.Config, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		pid, err := RunningPID(cfg)
		if err == nil && pid > 0 {
			return pid, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return 0, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// Stop sends SIGTERM to the daemon and SIGKILL if it is still alive after
// gracePeriod.
func Stop(ctx context.Context, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	pidPath := PIDPath(cfg)
	pid, err := RunningPID(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if pid == 0 {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	result.ForcedKill = true
	return result, nil
}

// BuildStatusSnapshot asks the daemon API for status and falls back to the
// pid file and a direct store read when the API is unreachable.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (api.DaemonStatus, error) {
	if client, err := queueaccess.DialDaemon(ctx, cfg); err == nil {
		status, statusErr := client.Status(ctx)
		if statusErr == nil {
			return *status, nil
		}
	}

	snapshot := api.DaemonStatus{Backend: cfg.Queue.Backend}
	if !cfg.UsesPostgres() {
		snapshot.QueueDBPath = cfg.QueueDBPath()
	}
	pid, err := RunningPID(cfg)
	if err != nil {
		snapshot.LastError = err.Error()
	}
	snapshot.PID = pid
	snapshot.Running = pid > 0

	store, err := queueaccess.OpenStore(ctx, cfg)
	if err != nil {
		snapshot.LastError = err.Error()
		return snapshot, nil
	}
	defer store.Close()
	stats, err := store.Stats(ctx)
	if err != nil {
		snapshot.LastError = err.Error()
		return snapshot, nil
	}
	snapshot.QueueStats = api.FromStats(stats)
	return snapshot, nil
}
