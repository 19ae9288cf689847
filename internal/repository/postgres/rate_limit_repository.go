package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// RateLimitRepository implements repository.RateLimitRepository for PostgreSQL.
type RateLimitRepository struct {
	pool *Pool
}

// NewRateLimitRepository creates a new PostgreSQL rate limit repository.
func NewRateLimitRepository(pool *Pool) *RateLimitRepository {
	return &RateLimitRepository{pool: pool}
}

// checkAndIncrementQuery performs the read-modify-write as one upsert.
// Concurrent upserts on the same key serialize on the row lock and each
// re-evaluates the SET expressions against the committed row.
//
//	$1 identity  $2 endpoint  $3 now  $4 window (ms)  $5 count cap
const checkAndIncrementQuery = `
INSERT INTO rate_limit_windows AS w (identity, endpoint, count, window_start, last_request)
VALUES ($1, $2, 1, $3::timestamptz, $3::timestamptz)
ON CONFLICT (identity, endpoint) DO UPDATE SET
	count = CASE
		WHEN $3::timestamptz - w.window_start >= $4::bigint * INTERVAL '1 millisecond' THEN 1
		ELSE LEAST(w.count + 1, $5::integer)
	END,
	window_start = CASE
		WHEN $3::timestamptz - w.window_start >= $4::bigint * INTERVAL '1 millisecond' THEN $3::timestamptz
		ELSE w.window_start
	END,
	last_request = $3::timestamptz
RETURNING count, window_start`

// CheckAndIncrement counts one request in a single atomic upsert.
func (r *RateLimitRepository) CheckAndIncrement(ctx context.Context, identity, endpoint string, maxRequests int, window time.Duration, now time.Time) (*repository.RateLimitResult, error) {
	if err := validateCheck(identity, endpoint, maxRequests, window); err != nil {
		return nil, err
	}

	type row struct {
		count       int
		windowStart time.Time
	}

	// Millisecond precision keeps window math identical across backends.
	now = now.Truncate(time.Millisecond)

	res, err := withRetry(ctx, defaultMaxRetries, func() (row, error) {
		var out row
		err := r.pool.QueryRow(ctx, checkAndIncrementQuery,
			identity, endpoint, now, window.Milliseconds(), repository.MaxWindowCount,
		).Scan(&out.count, &out.windowStart)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	return repository.NewRateLimitResult(res.count, maxRequests, res.windowStart.UTC(), window, now), nil
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

	err := r.pool.QueryRow(ctx,
		`SELECT count, window_start, last_request FROM rate_limit_windows WHERE identity = $1 AND endpoint = $2`,
		identity, endpoint,
	).Scan(&w.Count, &w.WindowStart, &w.LastRequest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit entry: %w", err)
	}

	w.WindowStart = w.WindowStart.UTC()
	w.LastRequest = w.LastRequest.UTC()
	return &w, nil
}

// ResetEntry deletes the window for an identity/endpoint combination.
func (r *RateLimitRepository) ResetEntry(ctx context.Context, identity, endpoint string) error {
	_, err := execWithRetry(ctx, r.pool,
		`DELETE FROM rate_limit_windows WHERE identity = $1 AND endpoint = $2`, identity, endpoint)
	if err != nil {
		return fmt.Errorf("failed to reset rate limit entry: %w", err)
	}
	return nil
}

// CleanupExpired removes windows that started before the cutoff.
func (r *RateLimitRepository) CleanupExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := execWithRetry(ctx, r.pool,
		`DELETE FROM rate_limit_windows WHERE window_start < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limit windows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListForIdentity retrieves all windows for an identity.
func (r *RateLimitRepository) ListForIdentity(ctx context.Context, identity string) ([]repository.RateLimitWindow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT endpoint, count, window_start, last_request FROM rate_limit_windows
		 WHERE identity = $1 ORDER BY last_request DESC, endpoint`, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate limit entries: %w", err)
	}
	defer rows.Close()

	windows := []repository.RateLimitWindow{}
	for rows.Next() {
		w := repository.RateLimitWindow{Identity: identity}
		if err := rows.Scan(&w.Endpoint, &w.Count, &w.WindowStart, &w.LastRequest); err != nil {
			return nil, fmt.Errorf("failed to scan rate limit entry: %w", err)
		}
		w.WindowStart = w.WindowStart.UTC()
		w.LastRequest = w.LastRequest.UTC()
		windows = append(windows, w)
	}
	return windows, rows.Err()
}
