package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const entryColumns = "id, item_id, status, priority, attempts, max_attempts, error_message, locked_at, locked_by, created_at, updated_at, completed_at"

// timestampLayout is fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id             int64
		itemID         int64
		statusStr      string
		priority       int
		attempts       int
		maxAttempts    int
		errorMessage   sql.NullString
		lockedAtRaw    sql.NullString
		lockedBy       sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		completedAtRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&itemID,
		&statusStr,
		&priority,
		&attempts,
		&maxAttempts,
		&errorMessage,
		&lockedAtRaw,
		&lockedBy,
		&createdRaw,
		&updatedRaw,
		&completedAtRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:           id,
		ItemID:       itemID,
		Status:       Status(statusStr),
		Priority:     priority,
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
		ErrorMessage: errorMessage.String,
		LockedBy:     lockedBy.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	if lockedAtRaw.Valid {
		if lockedAt, err := parseTimeString(lockedAtRaw.String); err == nil {
			entry.LockedAt = &lockedAt
		}
	}
	if completedAtRaw.Valid {
		if completedAt, err := parseTimeString(completedAtRaw.String); err == nil {
			entry.CompletedAt = &completedAt
		}
	}
	return entry, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timestampLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
