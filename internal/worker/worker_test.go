package worker_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/queue"
	"curator/internal/services"
	"curator/internal/testsupport"
	"curator/internal/worker"
)

const (
	poll    = 10 * time.Millisecond
	waitFor = 5 * time.Second
)

func newStore(t *testing.T, opts ...testsupport.ConfigOption) *queue.SQLiteStore {
	t.Helper()
	return testsupport.MustOpenStore(t, testsupport.NewConfig(t, opts...))
}

func enqueue(t *testing.T, store queue.Store, items ...int64) {
	t.Helper()
	for _, item := range items {
		_, queued, err := store.Enqueue(context.Background(), item, 0)
		require.NoError(t, err)
		require.True(t, queued)
	}
}

func stopWorker(t *testing.T, w *worker.Worker) {
	t.Helper()
	t.Cleanup(func() { _ = w.Stop(waitFor) })
}

func TestWorkerCompletesEntries(t *testing.T) {
	store := newStore(t)
	enqueue(t, store, 1, 2, 3)

	var (
		mu   sync.Mutex
		seen []int64
	)
	processor := worker.ProcessorFunc(func(ctx context.Context, entry *queue.Entry) error {
		entryID, ok := services.EntryIDFromContext(ctx)
		if !ok || entryID != entry.ID {
			return errors.New("entry id missing from context")
		}
		mu.Lock()
		seen = append(seen, entry.ItemID)
		mu.Unlock()
		return nil
	})

	w := worker.New(store, worker.Options{ID: "w-test"})
	require.NoError(t, w.Start(context.Background(), processor, poll))
	stopWorker(t, w)
	assert.True(t, w.IsRunning())

	require.Eventually(t, func() bool {
		stats, err := store.Stats(context.Background())
		return err == nil && stats.Completed == 3
	}, waitFor, poll)

	require.NoError(t, w.Stop(waitFor))
	assert.Equal(t, worker.StateStopped, w.State())
	assert.False(t, w.IsRunning())

	mu.Lock()
	assert.ElementsMatch(t, []int64{1, 2, 3}, seen)
	mu.Unlock()

	summary := w.Summary()
	assert.Equal(t, "w-test", summary.ID)
	assert.Equal(t, 3, summary.Claimed)
	assert.Equal(t, 3, summary.Completed)
	assert.Zero(t, summary.Failed)
	require.NotNil(t, summary.LastEntry)
	assert.Equal(t, queue.StatusCompleted, summary.LastEntry.Status)
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []int64
	tries []int
}

func (n *recordingNotifier) NotifyItemFailed(_ context.Context, itemID int64, attempts int, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, itemID)
	n.tries = append(n.tries, attempts)
	return nil
}

func TestWorkerRetriesThenFails(t *testing.T) {
	store := newStore(t, testsupport.WithMaxAttempts(2))
	enqueue(t, store, 42)

	var calls atomic.Int32
	processor := worker.ProcessorFunc(func(context.Context, *queue.Entry) error {
		calls.Add(1)
		return services.Wrap(services.ErrExternalService, "analysis", "analyze", "service returned 502", nil)
	})

	notifier := &recordingNotifier{}
	w := worker.New(store, worker.Options{ID: "w-fail", Notifier: notifier})
	require.NoError(t, w.Start(context.Background(), processor, poll))
	stopWorker(t, w)

	require.Eventually(t, func() bool {
		entry, err := store.GetByItemID(context.Background(), 42)
		return err == nil && entry != nil && entry.Status == queue.StatusFailed
	}, waitFor, poll)
	require.NoError(t, w.Stop(waitFor))

	entry, err := store.GetByItemID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Attempts)
	assert.Contains(t, entry.ErrorMessage, "service returned 502")
	assert.EqualValues(t, 2, calls.Load())

	summary := w.Summary()
	assert.Equal(t, 1, summary.Retried)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.LastError, "502")

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []int64{42}, notifier.items)
	assert.Equal(t, []int{2}, notifier.tries)
}

func TestWorkerTreatsPanicAsFailure(t *testing.T) {
	store := newStore(t, testsupport.WithMaxAttempts(1))
	enqueue(t, store, 7)

	processor := worker.ProcessorFunc(func(context.Context, *queue.Entry) error {
		panic("decoder exploded")
	})
	w := worker.New(store, worker.Options{ID: "w-panic"})
	require.NoError(t, w.Start(context.Background(), processor, poll))
	stopWorker(t, w)

	require.Eventually(t, func() bool {
		entry, err := store.GetByItemID(context.Background(), 7)
		return err == nil && entry != nil && entry.Status == queue.StatusFailed
	}, waitFor, poll)

	entry, err := store.GetByItemID(context.Background(), 7)
	require.NoError(t, err)
	assert.Contains(t, entry.ErrorMessage, "processor panicked")
	assert.Contains(t, entry.ErrorMessage, "decoder exploded")
	assert.True(t, w.IsRunning(), "a panicking callback must not kill the loop")
}

func TestStopLetsInFlightCallbackFinish(t *testing.T) {
	store := newStore(t)
	enqueue(t, store, 5)

	started := make(chan struct{})
	release := make(chan struct{})
	var sawCancel atomic.Bool
	processor := worker.ProcessorFunc(func(ctx context.Context, _ *queue.Entry) error {
		close(started)
		<-release
		sawCancel.Store(ctx.Err() != nil)
		return nil
	})

	w := worker.New(store, worker.Options{ID: "w-stop"})
	require.NoError(t, w.Start(context.Background(), processor, poll))

	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("callback never started")
	}

	err := w.Stop(20 * time.Millisecond)
	require.ErrorIs(t, err, worker.ErrStopTimeout)
	assert.Equal(t, worker.StateStopping, w.State())
	assert.False(t, w.IsRunning())

	close(release)
	require.NoError(t, w.Stop(waitFor))
	assert.Equal(t, worker.StateStopped, w.State())
	assert.False(t, sawCancel.Load(), "stop must not cancel the running callback")

	entry, err := store.GetByItemID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, entry.Status)
}

func TestStopPreventsNewClaims(t *testing.T) {
	store := newStore(t)
	w := worker.New(store, worker.Options{ID: "w-idle"})
	require.NoError(t, w.Start(context.Background(), worker.ProcessorFunc(func(context.Context, *queue.Entry) error {
		return nil
	}), poll))
	require.NoError(t, w.Stop(waitFor))

	enqueue(t, store, 9)
	time.Sleep(5 * poll)
	entry, err := store.GetByItemID(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, entry.Status)
}

func TestStartValidationAndIdempotence(t *testing.T) {
	store := newStore(t)
	w := worker.New(store, worker.Options{})
	assert.Regexp(t, regexp.MustCompile(`^worker-[0-9a-f]{8}$`), w.ID())
	assert.Equal(t, worker.StateIdle, w.State())
	assert.NoError(t, w.Stop(time.Second), "stopping an idle worker is a no-op")

	assert.Error(t, w.Start(context.Background(), nil, poll))
	noop := worker.ProcessorFunc(func(context.Context, *queue.Entry) error { return nil })
	assert.Error(t, w.Start(context.Background(), noop, 0))

	require.NoError(t, w.Start(context.Background(), noop, poll))
	stopWorker(t, w)
	require.NoError(t, w.Start(context.Background(), noop, poll))
	assert.Equal(t, worker.StateRunning, w.State())

	require.NoError(t, w.Stop(waitFor))
	require.NoError(t, w.Start(context.Background(), noop, poll), "a stopped worker may be restarted")
	assert.True(t, w.IsRunning())
}

// flakyQueue fails every claim.
type flakyQueue struct {
	claims atomic.Int32
}

func (q *flakyQueue) Claim(context.Context, string, time.Duration) (*queue.Entry, error) {
	q.claims.Add(1)
	return nil, errors.New("database is locked")
}

func (q *flakyQueue) Complete(context.Context, queue.Lease) error { return nil }

func (q *flakyQueue) Fail(context.Context, queue.Lease, string) (queue.Status, error) {
	return queue.StatusPending, nil
}

func TestClaimErrorsBackOff(t *testing.T) {
	q := &flakyQueue{}
	w := worker.New(q, worker.Options{ID: "w-flaky"})
	require.NoError(t, w.Start(context.Background(), worker.ProcessorFunc(func(context.Context, *queue.Entry) error {
		return nil
	}), 50*time.Millisecond))

	time.Sleep(220 * time.Millisecond)
	require.NoError(t, w.Stop(waitFor))

	claims := q.claims.Load()
	assert.GreaterOrEqual(t, claims, int32(2), "loop must keep running after a failed claim")
	assert.LessOrEqual(t, claims, int32(8), "failed claims must be followed by a backoff")
	assert.Equal(t, "database is locked", w.Summary().LastError)
}

// lossyQueue hands out one entry and then fails to record its completion.
type lossyQueue struct {
	mu      sync.Mutex
	handed  bool
	reports int
}

func (q *lossyQueue) Claim(context.Context, string, time.Duration) (*queue.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handed {
		return nil, nil
	}
	q.handed = true
	return &queue.Entry{ID: 1, ItemID: 1, Status: queue.StatusProcessing, Attempts: 1, MaxAttempts: 3}, nil
}

func (q *lossyQueue) Complete(context.Context, queue.Lease) error {
	q.mu.Lock()
	q.reports++
	q.mu.Unlock()
	return errors.New("disk I/O error")
}

func (q *lossyQueue) Fail(context.Context, queue.Lease, string) (queue.Status, error) {
	return "", errors.New("unexpected fail report")
}

func TestReportErrorsDoNotStopTheLoop(t *testing.T) {
	q := &lossyQueue{}
	w := worker.New(q, worker.Options{ID: "w-lossy"})
	require.NoError(t, w.Start(context.Background(), worker.ProcessorFunc(func(context.Context, *queue.Entry) error {
		return nil
	}), poll))
	stopWorker(t, w)

	require.Eventually(t, func() bool {
		return w.Summary().LastError == "disk I/O error"
	}, waitFor, poll)
	assert.True(t, w.IsRunning())
	assert.Zero(t, w.Summary().Completed)

	q.mu.Lock()
	assert.Equal(t, 1, q.reports)
	q.mu.Unlock()
}

// reclaimedQueue hands out one entry whose lease another worker has since
// taken over, so every report is rejected.
type reclaimedQueue struct {
	mu      sync.Mutex
	handed  bool
	reports []queue.Lease
}

func (q *reclaimedQueue) Claim(_ context.Context, workerID string, _ time.Duration) (*queue.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handed {
		return nil, nil
	}
	q.handed = true
	return &queue.Entry{ID: 7, ItemID: 70, Status: queue.StatusProcessing, Attempts: 2, MaxAttempts: 3, LockedBy: workerID}, nil
}

func (q *reclaimedQueue) Complete(_ context.Context, lease queue.Lease) error {
	q.mu.Lock()
	q.reports = append(q.reports, lease)
	q.mu.Unlock()
	return fmt.Errorf("complete entry 7: %w", queue.ErrLeaseLost)
}

func (q *reclaimedQueue) Fail(context.Context, queue.Lease, string) (queue.Status, error) {
	return "", errors.New("unexpected fail report")
}

func TestLostLeaseReportIsDropped(t *testing.T) {
	q := &reclaimedQueue{}
	notifier := &recordingNotifier{}
	w := worker.New(q, worker.Options{ID: "w-late", Notifier: notifier})
	require.NoError(t, w.Start(context.Background(), worker.ProcessorFunc(func(context.Context, *queue.Entry) error {
		return nil
	}), poll))
	stopWorker(t, w)

	require.Eventually(t, func() bool {
		return strings.Contains(w.Summary().LastError, queue.ErrLeaseLost.Error())
	}, waitFor, poll)
	assert.True(t, w.IsRunning())
	assert.Zero(t, w.Summary().Completed)

	q.mu.Lock()
	assert.Equal(t, []queue.Lease{{EntryID: 7, WorkerID: "w-late", Attempt: 2}}, q.reports)
	q.mu.Unlock()
}

func TestFailureReasonUsesConfiguredLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	cfg.Queue.ErrorMessageLimit = 1000
	store := testsupport.MustOpenStore(t, cfg)
	enqueue(t, store, 8)

	long := strings.Repeat("x", 800)
	w := worker.New(store, worker.Options{ID: "w-long", ErrorMessageLimit: cfg.Queue.ErrorMessageLimit})
	require.NoError(t, w.Start(context.Background(), worker.ProcessorFunc(func(context.Context, *queue.Entry) error {
		return errors.New(long)
	}), poll))
	stopWorker(t, w)

	require.Eventually(t, func() bool {
		entry, err := store.GetByItemID(context.Background(), 8)
		return err == nil && entry != nil && entry.Status == queue.StatusFailed
	}, waitFor, poll)
	entry, err := store.GetByItemID(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, long, entry.ErrorMessage)
}

type panickingNotifier struct {
	calls atomic.Int32
}

func (n *panickingNotifier) NotifyItemFailed(context.Context, int64, int, string) error {
	n.calls.Add(1)
	panic("notifier exploded")
}

func TestPanicOutsideProcessorKeepsLoopRunning(t *testing.T) {
	store := newStore(t, testsupport.WithMaxAttempts(1))
	enqueue(t, store, 1, 2)

	notifier := &panickingNotifier{}
	w := worker.New(store, worker.Options{ID: "w-panic", Notifier: notifier})
	require.NoError(t, w.Start(context.Background(), worker.ProcessorFunc(func(context.Context, *queue.Entry) error {
		return errors.New("analysis unavailable")
	}), poll))
	stopWorker(t, w)

	require.Eventually(t, func() bool {
		stats, err := store.Stats(context.Background())
		return err == nil && stats.Failed == 2
	}, waitFor, poll)
	assert.Equal(t, int32(2), notifier.calls.Load())
	assert.True(t, w.IsRunning())
	assert.Contains(t, w.Summary().LastError, "notifier exploded")
}

func TestParentCancellationStopsLoop(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	w := worker.New(store, worker.Options{ID: "w-parent"})
	require.NoError(t, w.Start(ctx, worker.ProcessorFunc(func(context.Context, *queue.Entry) error {
		return nil
	}), poll))

	cancel()
	require.Eventually(t, func() bool {
		return w.State() == worker.StateStopped
	}, waitFor, poll)
}
