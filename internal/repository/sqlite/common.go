// Package sqlite provides SQLite implementations of repository interfaces.
//
// Timestamps are stored as INTEGER Unix milliseconds so that window and
// expiry arithmetic happens inside single SQL statements.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// withBusyRetry runs fn, retrying with exponential backoff while SQLite
// reports the database as busy or locked.
func withBusyRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	const maxRetries = 5
	baseDelay := 50 * time.Millisecond

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isSQLiteBusyError(err) {
			return zero, err
		}

		if attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return zero, fmt.Errorf("database busy after %d attempts: %w", maxRetries, lastErr)
}

// execWithRetry runs an Exec statement through withBusyRetry.
func execWithRetry(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return withBusyRetry(ctx, func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}

// isSQLiteBusyError checks if an error is an SQLITE_BUSY or SQLITE_LOCKED error.
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "sqlite_busy") ||
		strings.Contains(errStr, "sqlite_locked") ||
		strings.Contains(errStr, "(5)") || // SQLITE_BUSY
		strings.Contains(errStr, "(6)") || // SQLITE_LOCKED
		strings.Contains(errStr, "(517)") || // SQLITE_BUSY_SNAPSHOT
		strings.Contains(errStr, "(262)") // SQLITE_BUSY_RECOVERY
}

// isUniqueViolation checks for SQLITE_CONSTRAINT_UNIQUE / PRIMARYKEY.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "(2067)") || // SQLITE_CONSTRAINT_UNIQUE
		strings.Contains(errStr, "(1555)") // SQLITE_CONSTRAINT_PRIMARYKEY
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtrFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
