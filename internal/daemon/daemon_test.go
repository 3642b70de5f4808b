package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/api"
	"curator/internal/config"
	"curator/internal/daemon"
	"curator/internal/queue"
	"curator/internal/testsupport"
	"curator/internal/worker"
)

type recordingProcessor struct {
	mu    sync.Mutex
	items []int64
	fail  map[int64]bool
}

func (p *recordingProcessor) Process(_ context.Context, entry *queue.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, entry.ItemID)
	if p.fail[entry.ItemID] {
		return errors.New("bad item")
	}
	return nil
}

func newDaemon(t *testing.T, cfg *config.Config, processor worker.Processor) (*daemon.Daemon, queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, processor, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Stop() })
	return d, store
}

func TestDaemonProcessesQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(2), testsupport.WithMaxAttempts(1))
	processor := &recordingProcessor{fail: map[int64]bool{3: true}}
	d, store := newDaemon(t, cfg, processor)
	ctx := context.Background()

	for _, item := range []int64{1, 2, 3} {
		_, _, err := store.Enqueue(ctx, item, 0)
		require.NoError(t, err)
	}
	require.NoError(t, d.Start(ctx))

	require.Eventually(t, func() bool {
		stats, err := store.Stats(ctx)
		return err == nil && stats.Completed == 2 && stats.Failed == 1
	}, 5*time.Second, 20*time.Millisecond)

	status := d.Status(ctx)
	assert.True(t, status.Running)
	assert.Equal(t, config.BackendSQLite, status.Backend)
	assert.Equal(t, cfg.QueueDBPath(), status.QueueDBPath)
	assert.Len(t, status.LockFiles, 2)
	require.Len(t, status.Workers, 2)
	assert.Equal(t, "test-worker-1", status.Workers[0].ID)
	assert.Equal(t, "test-worker-2", status.Workers[1].ID)
	claimed := status.Workers[0].Claimed + status.Workers[1].Claimed
	assert.Equal(t, 3, claimed)
	assert.Equal(t, 3, status.QueueStats.Total)

	require.NoError(t, d.Stop())
	assert.False(t, d.Status(ctx).Running)
}

func TestDaemonRejectsDuplicateWorkerID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg, &recordingProcessor{})
	ctx := context.Background()
	require.NoError(t, first.Start(ctx))

	secondCfg := *cfg
	secondCfg.Paths.APIBind = ""
	second, _ := newDaemon(t, &secondCfg, &recordingProcessor{})
	err := second.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test-worker")
	assert.Contains(t, second.Status(ctx).LastError, "already running")

	require.NoError(t, first.Stop())
	require.NoError(t, second.Start(ctx), "lock should be free once the first daemon stops")
}

func TestDaemonStartTwice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg, &recordingProcessor{})
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	assert.Error(t, d.Start(ctx))
}

func TestNewValidatesDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemon.New(cfg, nil, &recordingProcessor{}, nil)
	assert.Error(t, err)
}

func TestDaemonRejectsBadStatsSchedule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.StatsSchedule = "not a schedule"
	d, _ := newDaemon(t, cfg, &recordingProcessor{})
	err := d.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stats schedule")
	assert.False(t, d.Status(context.Background()).Running)
}

func TestDaemonServesAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("s3cret"))
	d, _ := newDaemon(t, cfg, &recordingProcessor{})
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))

	addr := d.APIAddress()
	require.NotEmpty(t, addr)

	anonymous := api.NewClient(addr, "")
	assert.ErrorIs(t, anonymous.Ping(ctx), api.ErrUnauthorized)

	client := api.NewClient(addr, "s3cret")
	resp, err := client.Enqueue(ctx, api.EnqueueRequest{ItemID: 12, Priority: 3})
	require.NoError(t, err)
	assert.True(t, resp.Queued)

	require.Eventually(t, func() bool {
		entry, err := client.Describe(ctx, 12)
		return err == nil && entry != nil && entry.Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.QueueStats.Completed)
	require.Len(t, status.Workers, 1)
	assert.Equal(t, "running", status.Workers[0].State)

	retry, err := client.Retry(ctx, 12, api.RetryRequest{})
	require.NoError(t, err)
	assert.True(t, retry.Pending)
}

func TestDaemonNotifiesPermanentFailures(t *testing.T) {
	var (
		mu     sync.Mutex
		titles []string
	)
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		titles = append(titles, r.Header.Get("Title"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer ntfy.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(1))
	cfg.Notifications.NtfyTopic = ntfy.URL
	processor := &recordingProcessor{fail: map[int64]bool{8: true}}
	d, store := newDaemon(t, cfg, processor)
	ctx := context.Background()

	_, _, err := store.Enqueue(ctx, 8, 0)
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(titles) == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"Curator - Daemon Started", "Curator - Item Failed"}, titles)
}
