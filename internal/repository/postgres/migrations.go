package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
}

// migrations contains all PostgreSQL schema migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Name:        "001_admission",
		Description: "Block registry and fixed-window rate limit counters",
		SQL: `
CREATE TABLE IF NOT EXISTS blocked_identities (
    id BIGSERIAL PRIMARY KEY,
    namespace TEXT NOT NULL CHECK (namespace IN ('ip', 'account')),
    identity TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    blocked_at TIMESTAMPTZ NOT NULL,
    blocked_by TEXT NOT NULL,
    expires_at TIMESTAMPTZ,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    UNIQUE (namespace, identity)
);

CREATE INDEX IF NOT EXISTS idx_blocked_identities_active
    ON blocked_identities(namespace, blocked_at DESC) WHERE active;

CREATE TABLE IF NOT EXISTS rate_limit_windows (
    identity TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    count INTEGER NOT NULL,
    window_start TIMESTAMPTZ NOT NULL,
    last_request TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (identity, endpoint)
);

CREATE INDEX IF NOT EXISTS idx_rate_limit_windows_start
    ON rate_limit_windows(window_start);
`,
	},
	{
		Version:     2,
		Name:        "002_credentials",
		Description: "Encoded password records for members and administrators",
		SQL: `
CREATE TABLE IF NOT EXISTS credentials (
    identity TEXT PRIMARY KEY,
    encoded_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`,
	},
}

// RunMigrations applies all pending migrations, each in its own transaction.
func RunMigrations(ctx context.Context, pool *Pool) error {
	slog.Info("running PostgreSQL database migrations")

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	pendingCount := 0
	for _, m := range migrations {
		if applied[m.Name] {
			slog.Debug("migration already applied", "migration", m.Name)
			continue
		}

		slog.Info("applying migration", "migration", m.Name, "description", m.Description)

		if err := applyMigration(ctx, pool, m); err != nil {
			return err
		}
		pendingCount++
	}

	if pendingCount == 0 {
		slog.Info("no pending PostgreSQL migrations")
	} else {
		slog.Info("PostgreSQL migrations complete", "applied", pendingCount)
	}

	return nil
}

func appliedMigrations(ctx context.Context, pool *Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT name FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration name: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return applied, nil
}

func applyMigration(ctx context.Context, pool *Pool, m Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", m.Name, err)
	}

	// ON CONFLICT covers two instances migrating concurrently.
	if _, err := tx.Exec(ctx, "INSERT INTO migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", m.Name); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.Name, err)
	}
	return nil
}
