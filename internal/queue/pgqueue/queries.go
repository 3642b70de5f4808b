package pgqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"curator/internal/queue"
)

const entryColumns = "id, item_id, status, priority, attempts, max_attempts, error_message, locked_at, locked_by, created_at, updated_at, completed_at"

// claimEligible matches pending rows with attempts left and processing rows
// whose lease predates $1.
const claimEligible = `((status = 'pending' AND attempts < max_attempts)
    OR (status = 'processing' AND locked_at < $1 AND attempts < max_attempts))`

func scanEntry(row pgx.Row) (*queue.Entry, error) {
	var (
		entry        queue.Entry
		status       string
		errorMessage *string
		lockedBy     *string
	)
	if err := row.Scan(
		&entry.ID,
		&entry.ItemID,
		&status,
		&entry.Priority,
		&entry.Attempts,
		&entry.MaxAttempts,
		&errorMessage,
		&entry.LockedAt,
		&lockedBy,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.CompletedAt,
	); err != nil {
		return nil, err
	}
	entry.Status = queue.Status(status)
	if errorMessage != nil {
		entry.ErrorMessage = *errorMessage
	}
	if lockedBy != nil {
		entry.LockedBy = *lockedBy
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return &entry, nil
}

func nullableString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func (s *Store) getOne(ctx context.Context, query string, args ...any) (*queue.Entry, error) {
	entry, err := scanEntry(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// Enqueue inserts a pending entry for itemID unless one already exists.
func (s *Store) Enqueue(ctx context.Context, itemID int64, priority int) (int64, bool, error) {
	now := s.now()
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO processing_queue (item_id, status, priority, attempts, max_attempts, created_at, updated_at)
         VALUES ($1, 'pending', $2, 0, $3, $4, $4)
         ON CONFLICT (item_id) DO NOTHING
         RETURNING id`,
		itemID, priority, s.opts.MaxAttempts, now,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("enqueue item %d: %w", itemID, err)
	}
	return id, true, nil
}

// Retry resets a completed or failed entry so it is claimed again.
func (s *Store) Retry(ctx context.Context, itemID int64) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE processing_queue
         SET status = 'pending', attempts = 0, error_message = NULL,
             locked_at = NULL, locked_by = NULL, completed_at = NULL, updated_at = $2
         WHERE item_id = $1 AND status IN ('failed', 'completed')`,
		itemID, s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("retry item %d: %w", itemID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns entries ordered by priority then creation time.
func (s *Store) List(ctx context.Context, opts queue.ListOptions) ([]*queue.Entry, error) {
	opts = opts.Normalize()
	if err := queue.ValidateStatusFilter(opts.Status); err != nil {
		return nil, err
	}
	query := `SELECT ` + entryColumns + ` FROM processing_queue
        WHERE ($1 = '' OR status = $1)
        ORDER BY priority DESC, created_at ASC, id ASC
        LIMIT $2`
	rows, err := s.db.Query(ctx, query, string(opts.Status), opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*queue.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list queue entries: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	return entries, nil
}

// Stats counts entries per status with a single aggregate.
func (s *Store) Stats(ctx context.Context) (queue.Stats, error) {
	var stats queue.Stats
	err := s.db.QueryRow(ctx,
		`SELECT
            COUNT(*) FILTER (WHERE status = 'pending'),
            COUNT(*) FILTER (WHERE status = 'processing'),
            COUNT(*) FILTER (WHERE status = 'completed'),
            COUNT(*) FILTER (WHERE status = 'failed'),
            COUNT(*)
        FROM processing_queue`,
	).Scan(&stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed, &stats.Total)
	if err != nil {
		return queue.Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// Claim takes the highest priority, oldest eligible entry for workerID.
// Competing workers skip rows another transaction has locked.
func (s *Store) Claim(ctx context.Context, workerID string, lockTimeout time.Duration) (*queue.Entry, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, queue.ErrInvalidWorkerID
	}
	if lockTimeout <= 0 {
		return nil, fmt.Errorf("claim entry: lock timeout must be positive, got %s", lockTimeout)
	}

	now := s.now()
	cutoff := now.Add(-lockTimeout)
	var claimed *queue.Entry
	err := s.execTx(ctx, func(tx *Store) error {
		if err := tx.expireExhaustedLeases(ctx, cutoff, now); err != nil {
			return err
		}
		entry, err := tx.getOne(ctx,
			`WITH candidate AS (
                SELECT id FROM processing_queue
                WHERE `+claimEligible+`
                ORDER BY priority DESC, created_at ASC, id ASC
                LIMIT 1
                FOR UPDATE SKIP LOCKED
            )
            UPDATE processing_queue q
            SET status = 'processing', locked_at = $2, locked_by = $3,
                attempts = q.attempts + 1, updated_at = $2
            FROM candidate
            WHERE q.id = candidate.id
            RETURNING q.id, q.item_id, q.status, q.priority, q.attempts, q.max_attempts,
                      q.error_message, q.locked_at, q.locked_by, q.created_at, q.updated_at, q.completed_at`,
			cutoff, now, workerID,
		)
		if err != nil {
			return err
		}
		claimed = entry
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim entry: %w", err)
	}
	return claimed, nil
}

// expireExhaustedLeases fails stale processing entries with no attempts left.
func (s *Store) expireExhaustedLeases(ctx context.Context, cutoff, now time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE processing_queue
         SET status = 'failed',
             error_message = $3::text || ' after ' || attempts::text || ' attempts',
             locked_at = NULL, locked_by = NULL, updated_at = $2
         WHERE status = 'processing' AND locked_at < $1 AND attempts >= max_attempts`,
		cutoff, now, queue.LeaseExpiredReason,
	)
	if err != nil {
		return fmt.Errorf("expire exhausted leases: %w", err)
	}
	return nil
}

// Complete marks the leased entry completed and releases the lease.
func (s *Store) Complete(ctx context.Context, lease queue.Lease) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE processing_queue
         SET status = 'completed', completed_at = $4, error_message = NULL,
             locked_at = NULL, locked_by = NULL, updated_at = $4
         WHERE id = $1 AND status = 'processing' AND locked_by = $2 AND attempts = $3`,
		lease.EntryID, lease.WorkerID, lease.Attempt, s.now(),
	)
	if err != nil {
		return fmt.Errorf("complete entry %d: %w", lease.EntryID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	current, err := s.GetByID(ctx, lease.EntryID)
	if err != nil {
		return err
	}
	_, err = queue.UnmatchedReport("complete", lease, current)
	return err
}

// Fail records reason and decides retry versus terminal failure in one
// statement.
func (s *Store) Fail(ctx context.Context, lease queue.Lease, reason string) (queue.Status, error) {
	reason = queue.TruncateReason(reason, s.opts.ErrorMessageLimit)
	var status string
	err := s.db.QueryRow(ctx,
		`UPDATE processing_queue
         SET status = CASE WHEN attempts < max_attempts THEN 'pending' ELSE 'failed' END,
             error_message = $4, locked_at = NULL, locked_by = NULL, updated_at = $5
         WHERE id = $1 AND status = 'processing' AND locked_by = $2 AND attempts = $3
         RETURNING status`,
		lease.EntryID, lease.WorkerID, lease.Attempt, nullableString(reason), s.now(),
	).Scan(&status)
	if err == nil {
		return queue.Status(status), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("fail entry %d: %w", lease.EntryID, err)
	}
	current, getErr := s.GetByID(ctx, lease.EntryID)
	if getErr != nil {
		return "", getErr
	}
	return queue.UnmatchedReport("fail", lease, current)
}

// GetByID fetches an entry by its identifier. It returns nil when absent.
func (s *Store) GetByID(ctx context.Context, entryID int64) (*queue.Entry, error) {
	entry, err := s.getOne(ctx, `SELECT `+entryColumns+` FROM processing_queue WHERE id = $1`, entryID)
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", entryID, err)
	}
	return entry, nil
}

// GetByItemID fetches the entry for an item. It returns nil when absent.
func (s *Store) GetByItemID(ctx context.Context, itemID int64) (*queue.Entry, error) {
	entry, err := s.getOne(ctx, `SELECT `+entryColumns+` FROM processing_queue WHERE item_id = $1`, itemID)
	if err != nil {
		return nil, fmt.Errorf("get entry for item %d: %w", itemID, err)
	}
	return entry, nil
}
