package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Enqueue inserts a pending entry for itemID unless one already exists.
func (s *SQLiteStore) Enqueue(ctx context.Context, itemID int64, priority int) (int64, bool, error) {
	now := formatTime(s.now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO processing_queue (item_id, status, priority, attempts, max_attempts, created_at, updated_at)
         VALUES (?, ?, ?, 0, ?, ?, ?)
         ON CONFLICT (item_id) DO NOTHING`,
		itemID,
		StatusPending,
		priority,
		s.opts.MaxAttempts,
		now,
		now,
	)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue item %d: %w", itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("enqueue item %d: rows affected: %w", itemID, err)
	}
	if affected == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("enqueue item %d: last insert id: %w", itemID, err)
	}
	return id, true, nil
}

// Retry resets a completed or failed entry so it is claimed again.
func (s *SQLiteStore) Retry(ctx context.Context, itemID int64) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE processing_queue
         SET status = ?, attempts = 0, error_message = NULL,
             locked_at = NULL, locked_by = NULL, completed_at = NULL, updated_at = ?
         WHERE item_id = ? AND status IN (?, ?)`,
		StatusPending,
		formatTime(s.now()),
		itemID,
		StatusFailed,
		StatusCompleted,
	)
	if err != nil {
		return false, fmt.Errorf("retry item %d: %w", itemID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("retry item %d: rows affected: %w", itemID, err)
	}
	return affected > 0, nil
}

// List returns entries ordered by priority then creation time.
func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*Entry, error) {
	opts = opts.Normalize()
	if err := ValidateStatusFilter(opts.Status); err != nil {
		return nil, err
	}
	query := `SELECT ` + entryColumns + ` FROM processing_queue`
	args := make([]any, 0, 2)
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, opts.Status)
	}
	query += ` ORDER BY priority DESC, created_at ASC, id ASC LIMIT ?`
	args = append(args, opts.Limit)

	ctx = ensureContext(ctx)
	var entries []*Entry
	err := retryOnBusy(ctx, func() error {
		entries = entries[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	return entries, nil
}

// GetByID fetches an entry by its identifier. It returns nil when absent.
func (s *SQLiteStore) GetByID(ctx context.Context, entryID int64) (*Entry, error) {
	entry, err := s.getOne(ctx, `SELECT `+entryColumns+` FROM processing_queue WHERE id = ?`, entryID)
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", entryID, err)
	}
	return entry, nil
}

// GetByItemID fetches the entry for an item. It returns nil when absent.
func (s *SQLiteStore) GetByItemID(ctx context.Context, itemID int64) (*Entry, error) {
	entry, err := s.getOne(ctx, `SELECT `+entryColumns+` FROM processing_queue WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("get entry for item %d: %w", itemID, err)
	}
	return entry, nil
}

func (s *SQLiteStore) getOne(ctx context.Context, query string, args ...any) (*Entry, error) {
	var entry *Entry
	err := s.queryRowWithRetry(ctx, func(row *sql.Row) error {
		var scanErr error
		entry, scanErr = scanEntry(row)
		return scanErr
	}, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}
