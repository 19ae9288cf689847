package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// RateLimitRepository implements repository.RateLimitRepository for SQLite.
type RateLimitRepository struct {
	db *sql.DB
}

// NewRateLimitRepository creates a new SQLite rate limit repository.
func NewRateLimitRepository(db *sql.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// checkAndIncrementQuery is the whole read-modify-write. SET expressions
// see the row as it was before the update, so count and window_start are
// both decided against the old window_start.
//
//	?1 identity  ?2 endpoint  ?3 now (ms)  ?4 window (ms)  ?5 count cap
const checkAndIncrementQuery = `
INSERT INTO rate_limit_windows (identity, endpoint, count, window_start, last_request)
VALUES (?1, ?2, 1, ?3, ?3)
ON CONFLICT(identity, endpoint) DO UPDATE SET
	count = CASE
		WHEN ?3 - rate_limit_windows.window_start >= ?4 THEN 1
		ELSE MIN(rate_limit_windows.count + 1, ?5)
	END,
	window_start = CASE
		WHEN ?3 - rate_limit_windows.window_start >= ?4 THEN ?3
		ELSE rate_limit_windows.window_start
	END,
	last_request = ?3
RETURNING count, window_start`

// CheckAndIncrement counts one request in a single atomic upsert.
func (r *RateLimitRepository) CheckAndIncrement(ctx context.Context, identity, endpoint string, maxRequests int, window time.Duration, now time.Time) (*repository.RateLimitResult, error) {
	if err := validateCheck(identity, endpoint, maxRequests, window); err != nil {
		return nil, err
	}

	type row struct {
		count       int
		windowStart int64
	}

	res, err := withBusyRetry(ctx, func() (row, error) {
		var out row
		err := r.db.QueryRowContext(ctx, checkAndIncrementQuery,
			identity, endpoint, toMillis(now), window.Milliseconds(), repository.MaxWindowCount,
		).Scan(&out.count, &out.windowStart)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	return repository.NewRateLimitResult(res.count, maxRequests, fromMillis(res.windowStart), window, now), nil
}

func validateCheck(identity, endpoint string, maxRequests int, window time.Duration) error {
	if err := repository.ValidateIdentity(identity); err != nil {
		return err
	}
	if err := repository.ValidateEndpoint(endpoint); err != nil {
		return err
	}
	if maxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be positive", repository.ErrInvalidInput)
	}
	if window < time.Millisecond {
		return fmt.Errorf("%w: window must be at least 1ms", repository.ErrInvalidInput)
	}
	return nil
}

// GetEntry retrieves the window for an identity/endpoint combination.
func (r *RateLimitRepository) GetEntry(ctx context.Context, identity, endpoint string) (*repository.RateLimitWindow, error) {
	w := repository.RateLimitWindow{Identity: identity, Endpoint: endpoint}
	var windowStart, lastRequest int64

	err := r.db.QueryRowContext(ctx,
		`SELECT count, window_start, last_request FROM rate_limit_windows WHERE identity = ? AND endpoint = ?`,
		identity, endpoint,
	).Scan(&w.Count, &windowStart, &lastRequest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit entry: %w", err)
	}

	w.WindowStart = fromMillis(windowStart)
	w.LastRequest = fromMillis(lastRequest)
	return &w, nil
}

// ResetEntry deletes the window for an identity/endpoint combination.
func (r *RateLimitRepository) ResetEntry(ctx context.Context, identity, endpoint string) error {
	_, err := execWithRetry(ctx, r.db,
		`DELETE FROM rate_limit_windows WHERE identity = ? AND endpoint = ?`, identity, endpoint)
	if err != nil {
		return fmt.Errorf("failed to reset rate limit entry: %w", err)
	}
	return nil
}

// CleanupExpired removes windows that started before the cutoff.
func (r *RateLimitRepository) CleanupExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := execWithRetry(ctx, r.db,
		`DELETE FROM rate_limit_windows WHERE window_start < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limit windows: %w", err)
	}
	return result.RowsAffected()
}

// ListForIdentity retrieves all windows for an identity.
func (r *RateLimitRepository) ListForIdentity(ctx context.Context, identity string) ([]repository.RateLimitWindow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT endpoint, count, window_start, last_request FROM rate_limit_windows
		 WHERE identity = ? ORDER BY last_request DESC, endpoint`, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate limit entries: %w", err)
	}
	defer rows.Close()

	windows := []repository.RateLimitWindow{}
	for rows.Next() {
		w := repository.RateLimitWindow{Identity: identity}
		var windowStart, lastRequest int64
		if err := rows.Scan(&w.Endpoint, &w.Count, &windowStart, &lastRequest); err != nil {
			return nil, fmt.Errorf("failed to scan rate limit entry: %w", err)
		}
		w.WindowStart = fromMillis(windowStart)
		w.LastRequest = fromMillis(lastRequest)
		windows = append(windows, w)
	}
	return windows, rows.Err()
}
