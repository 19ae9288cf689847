// Package postgres provides PostgreSQL implementations of repository interfaces.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes
const (
	// UniqueViolation is the PostgreSQL error code for unique constraint violations.
	UniqueViolation = "23505"
	// SerializationFailure is the PostgreSQL error code for serialization failures.
	SerializationFailure = "40001"
	// DeadlockDetected is the PostgreSQL error code for deadlock detection.
	DeadlockDetected = "40P01"
)

// defaultMaxRetries bounds retries of serialization failures and deadlocks.
const defaultMaxRetries = 3

// Pool wraps pgxpool.Pool to provide a consistent interface.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(ctx context.Context, connString string, maxConns int32) (*Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	} else {
		config.MaxConns = 25
	}

	config.MinConns = min(5, config.MaxConns)
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// isRetryableError checks if an error is a transient PostgreSQL error worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailure, DeadlockDetected:
			return true
		}
	}

	return false
}

// isUniqueViolation checks if an error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == UniqueViolation
	}
	return false
}

// withRetry executes a function with exponential backoff retry logic for transient errors.
func withRetry[T any](ctx context.Context, maxRetries int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	baseDelay := 50 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return zero, err
		}

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// execWithRetry runs an Exec statement through withRetry and returns the command tag.
func execWithRetry(ctx context.Context, pool *Pool, query string, args ...any) (pgconn.CommandTag, error) {
	return withRetry(ctx, defaultMaxRetries, func() (pgconn.CommandTag, error) {
		return pool.Exec(ctx, query, args...)
	})
}
