package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// HealthRepository reports Redis reachability.
type HealthRepository struct {
	client goredis.UniversalClient
}

// NewHealthRepository creates a Redis health repository.
func NewHealthRepository(client goredis.UniversalClient) *HealthRepository {
	return &HealthRepository{client: client}
}

// Ping performs a basic connectivity check.
func (r *HealthRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// CheckHealth runs PING and reports latency.
func (r *HealthRepository) CheckHealth(ctx context.Context) (*repository.ComponentHealth, error) {
	start := time.Now()
	health := &repository.ComponentHealth{
		Name:   "redis",
		Status: repository.HealthStatusHealthy,
	}

	err := r.client.Ping(ctx).Err()
	health.Finish(start)
	if err != nil {
		health.Status = repository.HealthStatusUnhealthy
		health.Message = "redis ping failed: " + err.Error()
		return health, err
	}
	return health, nil
}
