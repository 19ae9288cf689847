package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// HealthRepository implements health checks for SQLite databases.
type HealthRepository struct {
	db *sql.DB
}

// NewHealthRepository creates a new SQLite health repository.
func NewHealthRepository(db *sql.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

// Ping performs a basic connectivity check to the database.
func (r *HealthRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CheckHealth runs SELECT 1 and reports latency.
func (r *HealthRepository) CheckHealth(ctx context.Context) (*repository.ComponentHealth, error) {
	start := time.Now()
	health := &repository.ComponentHealth{
		Name:   "sqlite",
		Status: repository.HealthStatusHealthy,
	}

	var result int
	err := r.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	health.Finish(start)

	if err != nil {
		health.Status = repository.HealthStatusUnhealthy
		health.Message = "database query failed: " + err.Error()
		return health, err
	}
	return health, nil
}
