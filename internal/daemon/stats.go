package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"curator/internal/logging"
	"curator/internal/queue"
)

const statsQueryTimeout = 10 * time.Second

// statsReporter logs queue counts on a cron schedule. A nil reporter is a
// valid no-op.
type statsReporter struct {
	cron   *cron.Cron
	store  queue.Store
	logger *slog.Logger
}

func newStatsReporter(schedule string, store queue.Store, logger *slog.Logger) (*statsReporter, error) {
	if schedule == "" {
		return nil, nil
	}
	r := &statsReporter{
		cron:   cron.New(),
		store:  store,
		logger: logger,
	}
	if _, err := r.cron.AddFunc(schedule, r.report); err != nil {
		return nil, fmt.Errorf("stats schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *statsReporter) start() {
	if r == nil {
		return
	}
	r.cron.Start()
}

// stop waits for a running report to finish.
func (r *statsReporter) stop() {
	if r == nil {
		return
	}
	<-r.cron.Stop().Done()
}

func (r *statsReporter) report() {
	ctx, cancel := context.WithTimeout(context.Background(), statsQueryTimeout)
	defer cancel()

	stats, err := r.store.Stats(ctx)
	if err != nil {
		logging.WarnWithContext(r.logger, "queue stats unavailable", "stats_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "periodic queue report skipped"),
		)
		return
	}
	r.logger.Info("queue stats",
		logging.String(logging.FieldEventType, "queue_stats"),
		logging.Int("pending", stats.Pending),
		logging.Int("processing", stats.Processing),
		logging.Int("completed", stats.Completed),
		logging.Int("failed", stats.Failed),
		logging.Int("total", stats.Total),
	)
}
