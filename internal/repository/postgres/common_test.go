package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "generic error", err: errors.New("some error"), expected: false},
		{name: "serialization failure", err: &pgconn.PgError{Code: SerializationFailure}, expected: true},
		{name: "deadlock detected", err: &pgconn.PgError{Code: DeadlockDetected}, expected: true},
		{name: "unique violation (not retryable)", err: &pgconn.PgError{Code: UniqueViolation}, expected: false},
		{
			name:     "wrapped serialization failure",
			err:      errors.Join(errors.New("context"), &pgconn.PgError{Code: SerializationFailure}),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryableError(tt.err)
			if result != tt.expected {
				t.Errorf("isRetryableError() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "generic error", err: errors.New("some error"), expected: false},
		{name: "unique violation", err: &pgconn.PgError{Code: UniqueViolation}, expected: true},
		{name: "deadlock detected", err: &pgconn.PgError{Code: DeadlockDetected}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isUniqueViolation(tt.err)
			if result != tt.expected {
				t.Errorf("isUniqueViolation() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient errors until success", func(t *testing.T) {
		attempts := 0
		got, err := withRetry(ctx, 3, func() (int, error) {
			attempts++
			if attempts < 3 {
				return 0, &pgconn.PgError{Code: SerializationFailure}
			}
			return 42, nil
		})
		if err != nil {
			t.Fatalf("withRetry failed: %v", err)
		}
		if got != 42 || attempts != 3 {
			t.Errorf("got %d after %d attempts, want 42 after 3", got, attempts)
		}
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		attempts := 0
		_, err := withRetry(ctx, 3, func() (int, error) {
			attempts++
			return 0, &pgconn.PgError{Code: UniqueViolation}
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		_, err := withRetry(ctx, 2, func() (int, error) {
			attempts++
			return 0, &pgconn.PgError{Code: DeadlockDetected}
		})
		if !isRetryableError(err) {
			t.Errorf("final error should wrap the transient error, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		_, err := withRetry(cctx, 10, func() (int, error) {
			return 0, &pgconn.PgError{Code: SerializationFailure}
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want context.DeadlineExceeded", err)
		}
	})
}

func TestMigrationsOrdered(t *testing.T) {
	seen := make(map[string]bool)
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %s has version %d, want %d", m.Name, m.Version, i+1)
		}
		if seen[m.Name] {
			t.Errorf("duplicate migration name %s", m.Name)
		}
		seen[m.Name] = true
		if m.SQL == "" {
			t.Errorf("migration %s has empty SQL", m.Name)
		}
	}
}

func TestPostgreSQLErrorCodeConstants(t *testing.T) {
	if UniqueViolation != "23505" {
		t.Errorf("UniqueViolation = %q, want 23505", UniqueViolation)
	}
	if SerializationFailure != "40001" {
		t.Errorf("SerializationFailure = %q, want 40001", SerializationFailure)
	}
	if DeadlockDetected != "40P01" {
		t.Errorf("DeadlockDetected = %q, want 40P01", DeadlockDetected)
	}
}
