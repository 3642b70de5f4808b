package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"curator/internal/logging"
	"curator/internal/queue"
	"curator/internal/services"
)

func (w *Worker) run(loopCtx, workCtx context.Context, processor Processor, pollInterval time.Duration, done chan struct{}) {
	defer close(done)
	defer w.finish()
	defer w.logger.Info("worker stopped")

	for loopCtx.Err() == nil {
		busy, exit := w.step(workCtx, processor)
		if exit {
			return
		}
		if !busy {
			w.wait(loopCtx, pollInterval)
		}
	}
}

// step runs one claim/process/report iteration. busy is false when the
// loop should back off before the next claim. A panic anywhere in the
// iteration is logged and treated as a failed iteration.
func (w *Worker) step(workCtx context.Context, processor Processor) (busy, exit bool) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker iteration panicked: %v", r)
			w.recordError(err)
			w.logger.Error("worker iteration panicked",
				logging.Error(err),
				logging.Alert("worker_panic"),
				logging.String(logging.FieldEventType, "worker_panic"),
				logging.String(logging.FieldErrorHint, "a leased entry is recovered once its lock times out"),
				logging.String("stack", string(debug.Stack())),
			)
			busy, exit = false, false
		}
	}()

	// Claims run under workCtx so a stop signal cannot abandon a row the
	// store already leased to us.
	entry, err := w.store.Claim(workCtx, w.id, w.lockTimeout)
	if err != nil {
		if workCtx.Err() != nil {
			return false, true
		}
		w.recordError(err)
		w.logger.Error("failed to claim queue entry",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_claim_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return false, false
	}
	if entry == nil {
		return false, false
	}
	return w.process(workCtx, processor, entry), false
}

func (w *Worker) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// process runs the callback and reports its outcome. It returns false when
// the report itself failed.
func (w *Worker) process(ctx context.Context, processor Processor, entry *queue.Entry) bool {
	ctx = services.WithEntryID(ctx, entry.ID)
	ctx = services.WithItemID(ctx, entry.ItemID)
	ctx = services.WithWorkerID(ctx, w.id)
	logger := logging.WithContext(ctx, w.logger)

	w.recordClaim(entry)
	logger.Info("processing entry",
		logging.Int(logging.FieldAttempt, entry.Attempts),
		logging.Int("max_attempts", entry.MaxAttempts),
		logging.Int("priority", entry.Priority),
	)

	started := time.Now()
	procErr := invoke(ctx, processor, entry)
	elapsed := time.Since(started)

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.reportTimeout)
	defer cancel()

	if procErr == nil {
		return w.reportSuccess(reportCtx, logger, entry, elapsed)
	}
	return w.reportFailure(reportCtx, logger, entry, procErr, elapsed)
}

func invoke(ctx context.Context, processor Processor, entry *queue.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return processor.Process(ctx, entry)
}

func (w *Worker) reportSuccess(ctx context.Context, logger *slog.Logger, entry *queue.Entry, elapsed time.Duration) bool {
	if err := w.store.Complete(ctx, entry.Lease()); err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			w.leaseLost(logger, err)
			return true
		}
		w.recordError(err)
		logger.Error("failed to record completion",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_complete_failed"),
			logging.String(logging.FieldErrorHint, "the lease will expire and the entry will be processed again"),
		)
		return false
	}
	w.recordOutcome(entry, queue.StatusCompleted, nil)
	logger.Info("entry completed",
		logging.String(logging.FieldStatus, string(queue.StatusCompleted)),
		logging.Duration("elapsed", elapsed),
	)
	return true
}

func (w *Worker) reportFailure(ctx context.Context, logger *slog.Logger, entry *queue.Entry, procErr error, elapsed time.Duration) bool {
	reason := queue.ReasonFromError(procErr, w.errorLimit)
	status, err := w.store.Fail(ctx, entry.Lease(), reason)
	if err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			w.leaseLost(logger, err)
			return true
		}
		w.recordError(err)
		logger.Error("failed to record failure",
			logging.Error(err),
			logging.String("processing_error", reason),
			logging.String(logging.FieldEventType, "queue_fail_failed"),
			logging.String(logging.FieldErrorHint, "the lease will expire and the entry will be processed again"),
		)
		return false
	}
	w.recordOutcome(entry, status, procErr)

	kind, hint := services.Classify(procErr)
	attrs := []logging.Attr{
		logging.Error(procErr),
		logging.String(logging.FieldStatus, string(status)),
		logging.Int(logging.FieldAttempt, entry.Attempts),
		logging.Duration("elapsed", elapsed),
		logging.String("error_kind", kind),
		logging.String(logging.FieldErrorHint, hint),
	}
	if errors.Is(procErr, ErrProcessorPanic) {
		attrs = append(attrs, logging.Alert("processor_panic"))
	}
	if status == queue.StatusFailed {
		logging.ErrorWithContext(logger, "entry failed permanently", "entry_failed",
			append(attrs, logging.String(logging.FieldImpact, "item will not be processed until retried"))...)
		w.notifyFailed(ctx, logger, entry, reason)
		return true
	}
	logging.WarnWithContext(logger, "entry attempt failed; will retry", "entry_attempt_failed",
		append(attrs, logging.String(logging.FieldImpact, "entry returned to pending"))...)
	return true
}

func (w *Worker) notifyFailed(ctx context.Context, logger *slog.Logger, entry *queue.Entry, reason string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.NotifyItemFailed(ctx, entry.ItemID, entry.Attempts, reason); err != nil {
		logger.Warn("failure notification not delivered",
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
		)
	}
}

// leaseLost logs a report the store dropped because another worker reclaimed
// the entry after this worker's lease went stale.
func (w *Worker) leaseLost(logger *slog.Logger, err error) {
	w.recordError(err)
	logging.WarnWithContext(logger, "outcome dropped; lease was reclaimed", "lease_lost",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "raise queue.lock_timeout above the longest processing time"),
		logging.String(logging.FieldImpact, "the worker holding the new lease decides the outcome"),
	)
}
