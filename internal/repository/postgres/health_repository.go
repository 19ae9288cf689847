package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// HealthRepository implements health checks for PostgreSQL databases.
type HealthRepository struct {
	pool *pgxpool.Pool
}

// NewHealthRepository creates a new PostgreSQL health repository.
func NewHealthRepository(pool *pgxpool.Pool) *HealthRepository {
	return &HealthRepository{pool: pool}
}

// Ping performs a basic connectivity check to the database.
func (r *HealthRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CheckHealth runs SELECT 1 and reports latency and pool pressure.
func (r *HealthRepository) CheckHealth(ctx context.Context) (*repository.ComponentHealth, error) {
	start := time.Now()
	health := &repository.ComponentHealth{
		Name:   "postgresql",
		Status: repository.HealthStatusHealthy,
	}

	var result int
	err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	health.Finish(start)

	if err != nil {
		health.Status = repository.HealthStatusUnhealthy
		health.Message = "database query failed: " + err.Error()
		return health, err
	}

	stat := r.pool.Stat()
	if health.Status == repository.HealthStatusHealthy && stat.MaxConns() > 0 && stat.AcquiredConns() >= stat.MaxConns() {
		health.Status = repository.HealthStatusDegraded
		health.Message = "connection pool exhausted"
	}

	return health, nil
}
