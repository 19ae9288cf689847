package repository

import (
	"context"
	"time"
)

// HealthStatus represents the overall health state.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// slowQueryThreshold marks a backend as degraded when a probe takes longer.
const slowQueryThreshold = 100 * time.Millisecond

// ComponentHealth represents the health of a single storage backend.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Latency   time.Duration `json:"-"`
	LatencyMS int64         `json:"latency_ms"`
	Message   string        `json:"message,omitempty"`
}

// Finish records latency and downgrades a healthy component that answered slowly.
func (c *ComponentHealth) Finish(start time.Time) {
	c.Latency = time.Since(start)
	c.LatencyMS = c.Latency.Milliseconds()
	if c.Status == HealthStatusHealthy && c.Latency > slowQueryThreshold {
		c.Status = HealthStatusDegraded
		c.Message = "high query latency"
	}
}

// HealthRepository provides health check operations for a storage backend.
type HealthRepository interface {
	// Ping performs a basic connectivity check.
	Ping(ctx context.Context) error

	// CheckHealth runs a trivial query and reports latency.
	CheckHealth(ctx context.Context) (*ComponentHealth, error)
}
