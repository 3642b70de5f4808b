package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// claimEligible matches rows a worker may take: pending rows with attempts
// left, and processing rows whose lease is older than the cutoff parameter.
const claimEligible = `((status = 'pending' AND attempts < max_attempts)
    OR (status = 'processing' AND locked_at < ? AND attempts < max_attempts))`

// Claim takes the highest priority, oldest eligible entry for workerID.
//
// SQLite has no row locks, so the claim is a compare-and-swap: pick the best
// candidate, then update it only if it is still eligible. A zero-row update
// means another worker won that entry and the next candidate is tried.
func (s *SQLiteStore) Claim(ctx context.Context, workerID string, lockTimeout time.Duration) (*Entry, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, ErrInvalidWorkerID
	}
	if lockTimeout <= 0 {
		return nil, fmt.Errorf("claim entry: lock timeout must be positive, got %s", lockTimeout)
	}
	ctx = ensureContext(ctx)

	now := s.now()
	cutoff := formatTime(now.Add(-lockTimeout))
	if _, err := s.expireExhaustedLeases(ctx, cutoff, now); err != nil {
		return nil, err
	}

	for round := 0; round < s.opts.ClaimRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate, err := s.nextCandidate(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("select claim candidate: %w", err)
		}
		if candidate == 0 {
			return nil, nil
		}
		entry, err := s.tryClaim(ctx, candidate, workerID, cutoff, now)
		if err != nil {
			return nil, fmt.Errorf("claim entry %d: %w", candidate, err)
		}
		if entry != nil {
			return entry, nil
		}
	}
	// Every round lost a race; the caller polls again.
	return nil, nil
}

func (s *SQLiteStore) nextCandidate(ctx context.Context, cutoff string) (int64, error) {
	var id int64
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		return row.Scan(&id)
	}, `SELECT id FROM processing_queue
        WHERE `+claimEligible+`
        ORDER BY priority DESC, created_at ASC, id ASC
        LIMIT 1`, cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func (s *SQLiteStore) tryClaim(ctx context.Context, id int64, workerID, cutoff string, now time.Time) (*Entry, error) {
	stamp := formatTime(now)
	entry, err := s.getOne(ctx,
		`UPDATE processing_queue
         SET status = 'processing', locked_at = ?, locked_by = ?,
             attempts = attempts + 1, updated_at = ?
         WHERE id = ? AND `+claimEligible+`
         RETURNING `+entryColumns,
		stamp, workerID, stamp, id, cutoff,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// expireExhaustedLeases fails stale processing entries that have no attempts
// left, so a crash on the final attempt ends in failed rather than looping.
func (s *SQLiteStore) expireExhaustedLeases(ctx context.Context, cutoff string, now time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE processing_queue
         SET status = 'failed',
             error_message = ? || ' after ' || attempts || ' attempts',
             locked_at = NULL, locked_by = NULL, updated_at = ?
         WHERE status = 'processing' AND locked_at < ? AND attempts >= max_attempts`,
		LeaseExpiredReason, formatTime(now), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("expire exhausted leases: %w", err)
	}
	return res.RowsAffected()
}

// leaseHeld is the fencing predicate shared by Complete and Fail. Its
// parameters are entry id, worker id and attempt.
const leaseHeld = `id = ? AND status = 'processing' AND locked_by = ? AND attempts = ?`

// Complete marks the leased entry completed and releases the lease.
func (s *SQLiteStore) Complete(ctx context.Context, lease Lease) error {
	stamp := formatTime(s.now())
	res, err := s.execWithRetry(ctx,
		`UPDATE processing_queue
         SET status = 'completed', completed_at = ?, error_message = NULL,
             locked_at = NULL, locked_by = NULL, updated_at = ?
         WHERE `+leaseHeld,
		stamp, stamp, lease.EntryID, lease.WorkerID, lease.Attempt,
	)
	if err != nil {
		return fmt.Errorf("complete entry %d: %w", lease.EntryID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete entry %d: rows affected: %w", lease.EntryID, err)
	}
	if affected > 0 {
		return nil
	}
	current, err := s.GetByID(ctx, lease.EntryID)
	if err != nil {
		return err
	}
	_, err = UnmatchedReport("complete", lease, current)
	return err
}

// Fail records reason and decides retry versus terminal failure in one
// statement.
func (s *SQLiteStore) Fail(ctx context.Context, lease Lease, reason string) (Status, error) {
	reason = TruncateReason(reason, s.opts.ErrorMessageLimit)
	var statusStr string
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		return row.Scan(&statusStr)
	}, `UPDATE processing_queue
        SET status = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
            error_message = ?, locked_at = NULL, locked_by = NULL, updated_at = ?
        WHERE `+leaseHeld+`
        RETURNING status`,
		nullableString(reason), formatTime(s.now()), lease.EntryID, lease.WorkerID, lease.Attempt,
	)
	if err == nil {
		return Status(statusStr), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("fail entry %d: %w", lease.EntryID, err)
	}
	current, getErr := s.GetByID(ctx, lease.EntryID)
	if getErr != nil {
		return "", getErr
	}
	return UnmatchedReport("fail", lease, current)
}
