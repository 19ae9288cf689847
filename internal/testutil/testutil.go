// Package testutil provides shared setup for tests that need a real SQLite
// database, a configuration or seeded admission state.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/database"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/repository/sqlite"
)

// Epoch is the fixed start time of fake clocks handed out by this package.
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewFakeClock returns a fake clock set to Epoch.
func NewFakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(Epoch)
}

// SetupTestDB creates an in-memory SQLite database for testing
// The database is automatically closed when the test completes
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// IMPORTANT: Force single connection for in-memory databases
	// Each connection in the pool gets its own separate :memory: database
	db.SetMaxOpenConns(1)

	if err := database.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SetupTestRepositories returns SQLite-backed repositories over SetupTestDB.
func SetupTestRepositories(t *testing.T) *repository.Repositories {
	t.Helper()

	repos, err := sqlite.NewRepositories(SetupTestDB(t))
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}
	return repos
}

// SetupTestConfig returns a valid configuration backed by a SQLite file in a
// temporary directory. Environment variables are ignored.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	policies := config.DefaultPolicies(config.EndpointPolicy{
		MaxRequests:         10,
		Window:              time.Minute,
		OnStorageError:      config.OnStorageErrorAllow,
		AutoBlockMultiplier: 3,
		AutoBlockDuration:   time.Hour,
	})

	return &config.Config{
		Port:                    "0",
		DBType:                  config.DBTypeSQLite,
		DBPath:                  filepath.Join(t.TempDir(), "velvetrope.db"),
		AdmissionStore:          config.AdmissionStoreSQL,
		TrustProxyHeaders:       "false",
		AdminUsername:           "admin",
		AdminPassword:           "admin-password",
		JWTSecret:               "0123456789abcdef0123456789abcdef",
		JWTTTLMinutes:           60,
		Policies:                policies,
		PruneIntervalMinutes:    60,
		RateLimitRetentionHours: 24,
		ReadTimeoutSeconds:      15,
		WriteTimeoutSeconds:     15,
	}
}
