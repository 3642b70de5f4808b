package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/queue"
	"curator/internal/worker"
)

// Daemon runs the configured worker loops against one queue store and
// enforces that a worker id is held by a single process at a time.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     queue.Store
	processor worker.Processor
	notifier  notifications.Service

	mu        sync.Mutex
	workers   []*worker.Worker
	locks     []*flock.Flock
	stats     *statsReporter
	api       *apiServer
	lastError string

	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool
	PID         int
	Backend     string
	QueueDBPath string
	LockFiles   []string
	QueueStats  queue.Stats
	Workers     []worker.Summary
	LastError   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store queue.Store, processor worker.Processor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || processor == nil {
		return nil, errors.New("daemon requires config, store, and processor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		processor: processor,
		notifier:  notifications.NewService(cfg),
	}
	apiSrv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = apiSrv
	return d, nil
}

// Start acquires worker locks, launches the worker loops, the stats reporter
// and the API server. Cancelling ctx does not reach in-flight callbacks:
// workers keep ctx values but only stop through Stop, which lets the
// current entry finish within the stop timeout.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}

	ids := workerIDs(d.cfg)
	locks, err := d.acquireLocks(ids)
	if err != nil {
		d.running.Store(false)
		d.setLastError(err)
		return err
	}

	workCtx := context.WithoutCancel(ctx)
	workers := make([]*worker.Worker, 0, len(ids))
	for _, id := range ids {
		w := worker.New(d.store, worker.Options{
			ID:                id,
			LockTimeout:       d.cfg.LockTimeout(),
			ReportTimeout:     d.cfg.ReportTimeout(),
			ErrorMessageLimit: d.cfg.Queue.ErrorMessageLimit,
			Logger:            d.logger,
			Notifier:          d.notifier,
		})
		if err := w.Start(workCtx, d.processor, d.cfg.PollInterval()); err != nil {
			stopWorkers(workers, d.cfg.StopTimeout())
			releaseLocks(locks)
			d.running.Store(false)
			d.setLastError(err)
			return fmt.Errorf("start worker %s: %w", id, err)
		}
		workers = append(workers, w)
	}

	stats, err := newStatsReporter(d.cfg.Logging.StatsSchedule, d.store, d.logger)
	if err != nil {
		stopWorkers(workers, d.cfg.StopTimeout())
		releaseLocks(locks)
		d.running.Store(false)
		return err
	}
	stats.start()

	if err := d.api.start(ctx); err != nil {
		stats.stop()
		stopWorkers(workers, d.cfg.StopTimeout())
		releaseLocks(locks)
		d.running.Store(false)
		d.setLastError(err)
		return err
	}

	d.mu.Lock()
	d.workers = workers
	d.locks = locks
	d.stats = stats
	d.mu.Unlock()

	d.logger.Info("curator daemon started",
		logging.Int("workers", len(workers)),
		logging.String("backend", d.cfg.Queue.Backend),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	go d.announceStart(len(workers))
	return nil
}

func (d *Daemon) announceStart(workers int) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.NotifyTimeout())
	defer cancel()
	if err := d.notifier.NotifyDaemonStarted(ctx, workers); err != nil {
		d.logger.Warn("start notification not delivered",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
		)
	}
}

// Stop halts claiming on every worker, waits up to the configured stop
// timeout for in-flight items and releases the worker locks.
func (d *Daemon) Stop() error {
	if !d.running.Load() {
		return nil
	}

	d.mu.Lock()
	workers := d.workers
	locks := d.locks
	stats := d.stats
	d.workers = nil
	d.locks = nil
	d.stats = nil
	d.mu.Unlock()

	d.api.stop()
	stats.stop()
	err := stopWorkers(workers, d.cfg.StopTimeout())
	if err != nil {
		d.logger.Warn("workers did not stop cleanly",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_stop_timeout"),
			logging.String(logging.FieldImpact, "in-flight items keep their lease until it goes stale"),
		)
	}
	if lockErr := releaseLocks(locks); lockErr != nil {
		d.logger.Warn("failed to release worker locks", logging.Error(lockErr))
		err = multierror.Append(err, lockErr).ErrorOrNil()
	}
	d.running.Store(false)
	d.logger.Info("curator daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	var result *multierror.Error
	if err := d.Stop(); err != nil {
		result = multierror.Append(result, err)
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close store: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Store returns the queue store the daemon serves.
func (d *Daemon) Store() queue.Store {
	return d.store
}

// APIAddress returns the bound API address, or "" when the API is disabled
// or not started.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	workers := d.workers
	locks := d.locks
	lastError := d.lastError
	d.mu.Unlock()

	status := Status{
		Running:   d.running.Load(),
		PID:       os.Getpid(),
		Backend:   d.cfg.Queue.Backend,
		LastError: lastError,
	}
	if !d.cfg.UsesPostgres() {
		status.QueueDBPath = d.cfg.QueueDBPath()
	}
	for _, lock := range locks {
		status.LockFiles = append(status.LockFiles, lock.Path())
	}
	for _, w := range workers {
		status.Workers = append(status.Workers, w.Summary())
	}
	stats, err := d.store.Stats(ctx)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.QueueStats = stats
	}
	return status
}

func (d *Daemon) setLastError(err error) {
	d.mu.Lock()
	d.lastError = err.Error()
	d.mu.Unlock()
}

func (d *Daemon) acquireLocks(ids []string) ([]*flock.Flock, error) {
	dir := lockDir(d.cfg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	locks := make([]*flock.Flock, 0, len(ids))
	for _, id := range ids {
		lock := flock.New(filepath.Join(dir, id+".lock"))
		ok, err := lock.TryLock()
		if err != nil {
			releaseLocks(locks)
			return nil, fmt.Errorf("acquire lock for %s: %w", id, err)
		}
		if !ok {
			releaseLocks(locks)
			return nil, fmt.Errorf("worker %s is already running in another curator daemon", id)
		}
		locks = append(locks, lock)
	}
	return locks, nil
}

func releaseLocks(locks []*flock.Flock) error {
	var result *multierror.Error
	for _, lock := range locks {
		if err := lock.Unlock(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unlock %s: %w", lock.Path(), err))
		}
	}
	return result.ErrorOrNil()
}

// stopWorkers stops all workers concurrently so shutdown takes at most one
// stop timeout.
func stopWorkers(workers []*worker.Worker, timeout time.Duration) error {
	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			if err := w.Stop(timeout); err != nil {
				return fmt.Errorf("stop worker %s: %w", w.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// workerIDs returns one id per configured worker. A configured id is used
// as-is for a single worker and suffixed with an index otherwise.
func workerIDs(cfg *config.Config) []string {
	count := cfg.Worker.Count
	if count <= 0 {
		count = 1
	}
	ids := make([]string, 0, count)
	for i := range count {
		switch {
		case cfg.Worker.ID == "":
			ids = append(ids, worker.GenerateID())
		case count == 1:
			ids = append(ids, cfg.Worker.ID)
		default:
			ids = append(ids, cfg.Worker.ID+"-"+strconv.Itoa(i+1))
		}
	}
	return ids
}

func lockDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "locks")
}
