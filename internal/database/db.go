// Package database opens the SQLite database and applies its schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "modernc.org/sqlite"
)

// pragmas are applied to every pooled connection through the DSN so that
// busy_timeout and foreign keys hold regardless of which connection runs a query.
var pragmas = []string{
	"foreign_keys(ON)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"cache_size(-64000)", // 64MB cache
	"busy_timeout(5000)", // 5 second busy timeout
}

// DSN builds a modernc.org/sqlite connection string for dbPath.
// Transactions take the write lock up front (_txlock=immediate).
func DSN(dbPath string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return "file:" + dbPath + sep + q.Encode()
}

// Initialize opens the SQLite database and runs pending migrations.
func Initialize(ctx context.Context, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
