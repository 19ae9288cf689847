package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/fjmerc/velvetrope/internal/database"
	"github.com/fjmerc/velvetrope/internal/repository"
)

// setupTestDB creates an in-memory SQLite database with the schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// Force single connection for in-memory databases
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

// setupFileDB opens a migrated on-disk database with a pool of several
// connections, so concurrent callers run on separate connections.
func setupFileDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Initialize(context.Background(), filepath.Join(t.TempDir(), "velvetrope.db"))
	if err != nil {
		t.Fatalf("failed to initialize file db: %v", err)
	}
	db.SetMaxOpenConns(8)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestNewRepositories_Success(t *testing.T) {
	db := setupTestDB(t)

	repos, err := NewRepositories(db)
	if err != nil {
		t.Fatalf("NewRepositories() error = %v", err)
	}

	if repos.Blocks == nil {
		t.Error("Blocks repository is nil")
	}
	if repos.RateLimits == nil {
		t.Error("RateLimits repository is nil")
	}
	if repos.Credentials == nil {
		t.Error("Credentials repository is nil")
	}
	if len(repos.Health) != 1 {
		t.Errorf("Health probes = %d, want 1", len(repos.Health))
	}
	if repos.DatabaseType != repository.DatabaseTypeSQLite {
		t.Errorf("DatabaseType = %q, want sqlite", repos.DatabaseType)
	}
	if repos.AdmissionStore != repository.AdmissionStoreSQL {
		t.Errorf("AdmissionStore = %q, want sql", repos.AdmissionStore)
	}
	if repos.Cleanup == nil {
		t.Error("Cleanup is nil")
	}
}

func TestNewRepositories_NilDatabase(t *testing.T) {
	repos, err := NewRepositories(nil)
	if err != repository.ErrNilDatabase {
		t.Errorf("NewRepositories() error = %v, want %v", err, repository.ErrNilDatabase)
	}
	if repos != nil {
		t.Error("NewRepositories() expected nil repos for nil database")
	}
}

func TestNewRepositories_RepositoriesImplementInterfaces(t *testing.T) {
	var _ repository.BlockRepository = (*BlockRepository)(nil)
	var _ repository.RateLimitRepository = (*RateLimitRepository)(nil)
	var _ repository.CredentialRepository = (*CredentialRepository)(nil)
	var _ repository.HealthRepository = (*HealthRepository)(nil)
}

func TestHealthRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHealthRepository(db)
	ctx := context.Background()

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}

	health, err := repo.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
	if health.Name != "sqlite" {
		t.Errorf("Name = %q, want sqlite", health.Name)
	}
	if health.Status == repository.HealthStatusUnhealthy {
		t.Errorf("Status = %q, want healthy or degraded", health.Status)
	}

	db.Close()
	health, err = repo.CheckHealth(ctx)
	if err == nil {
		t.Error("CheckHealth() on closed db should fail")
	}
	if health.Status != repository.HealthStatusUnhealthy {
		t.Errorf("Status = %q, want unhealthy", health.Status)
	}
}
