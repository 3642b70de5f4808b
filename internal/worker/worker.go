package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"curator/internal/logging"
	"curator/internal/queue"
)

// Queue is the part of queue.Store a worker needs.
type Queue interface {
	Claim(ctx context.Context, workerID string, lockTimeout time.Duration) (*queue.Entry, error)
	Complete(ctx context.Context, lease queue.Lease) error
	Fail(ctx context.Context, lease queue.Lease, reason string) (queue.Status, error)
}

// Processor handles one claimed entry. A nil error completes the entry; any
// error (or panic) fails the attempt.
type Processor interface {
	Process(ctx context.Context, entry *queue.Entry) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, entry *queue.Entry) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, entry *queue.Entry) error {
	return f(ctx, entry)
}

// Notifier is told when an entry exhausts its attempt budget.
type Notifier interface {
	NotifyItemFailed(ctx context.Context, itemID int64, attempts int, reason string) error
}

// State is the worker lifecycle.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

const (
	DefaultLockTimeout   = 10 * time.Minute
	DefaultReportTimeout = 30 * time.Second
)

var (
	// ErrStopTimeout is returned by Stop when the loop is still running after
	// the timeout. The in-flight callback is not interrupted.
	ErrStopTimeout = errors.New("worker did not stop before timeout")
	// ErrProcessorPanic wraps a recovered processor panic.
	ErrProcessorPanic = errors.New("processor panicked")
)

// Options configures a Worker.
type Options struct {
	// ID identifies the worker in leases. Empty generates one.
	ID                string
	LockTimeout       time.Duration
	ReportTimeout     time.Duration
	// ErrorMessageLimit bounds failure reasons in characters. Zero selects
	// queue.DefaultErrorMessageLimit.
	ErrorMessageLimit int
	Logger            *slog.Logger
	Notifier          Notifier
}

// Worker claims entries one at a time and reports each outcome.
type Worker struct {
	id            string
	store         Queue
	lockTimeout   time.Duration
	reportTimeout time.Duration
	errorLimit    int
	logger        *slog.Logger
	notifier      Notifier

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	summary Summary
}

// GenerateID returns a fresh worker identity of the form worker-1a2b3c4d.
func GenerateID() string {
	return "worker-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// New constructs an idle worker.
func New(store Queue, opts Options) *Worker {
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = GenerateID()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = DefaultReportTimeout
	}
	logger := logging.NewComponentLogger(opts.Logger, "worker").With(logging.String(logging.FieldWorkerID, id))
	return &Worker{
		id:            id,
		store:         store,
		lockTimeout:   opts.LockTimeout,
		reportTimeout: opts.ReportTimeout,
		errorLimit:    opts.ErrorMessageLimit,
		logger:        logger,
		notifier:      opts.Notifier,
		state:         StateIdle,
	}
}

// ID returns the worker identity written into leases.
func (w *Worker) ID() string {
	return w.id
}

// Start launches the loop in a goroutine. Callbacks and reports run under
// ctx; Stop only halts claiming. Starting a running worker is a no-op.
func (w *Worker) Start(ctx context.Context, processor Processor, pollInterval time.Duration) error {
	if processor == nil {
		return errors.New("worker: processor is required")
	}
	if pollInterval <= 0 {
		return errors.New("worker: poll interval must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	w.mu.Lock()
	switch w.state {
	case StateRunning:
		w.mu.Unlock()
		w.logger.Info("worker already running; start ignored")
		return nil
	case StateStopping:
		w.mu.Unlock()
		return errors.New("worker: still stopping")
	case StateIdle, StateStopped:
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.state = StateRunning
	w.summary.StartedAt = time.Now()
	w.mu.Unlock()

	w.logger.Info("worker started",
		logging.Duration("poll_interval", pollInterval),
		logging.Duration("lock_timeout", w.lockTimeout),
	)
	go w.run(loopCtx, ctx, processor, pollInterval, done)
	return nil
}

// Stop signals the loop and waits up to timeout for it to exit. A
// non-positive timeout waits indefinitely.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if w.state != StateRunning && w.state != StateStopping {
		w.mu.Unlock()
		return nil
	}
	w.state = StateStopping
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()

	if timeout <= 0 {
		<-done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		w.logger.Warn("worker still busy after stop timeout",
			logging.Duration("timeout", timeout),
			logging.String(logging.FieldEventType, "worker_stop_timeout"),
			logging.String(logging.FieldErrorHint, "the current callback keeps running and its outcome will still be reported"),
		)
		return ErrStopTimeout
	}
}

// IsRunning reports whether the loop is accepting new work.
func (w *Worker) IsRunning() bool {
	return w.State() == StateRunning
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) finish() {
	w.mu.Lock()
	w.state = StateStopped
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
}
