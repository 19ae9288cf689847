package mock

import (
	"context"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// HealthRepository is a mock health probe.
type HealthRepository struct {
	Name      string
	PingError error
}

var _ repository.HealthRepository = (*HealthRepository)(nil)

// Ping implements repository.HealthRepository.
func (r *HealthRepository) Ping(ctx context.Context) error {
	return r.PingError
}

// CheckHealth implements repository.HealthRepository.
func (r *HealthRepository) CheckHealth(ctx context.Context) (*repository.ComponentHealth, error) {
	h := &repository.ComponentHealth{Name: r.Name, Status: repository.HealthStatusHealthy}
	if r.PingError != nil {
		h.Status = repository.HealthStatusUnhealthy
		h.Message = r.PingError.Error()
		return h, r.PingError
	}
	return h, nil
}

// Repositories bundles the mocks so tests can reach the concrete types.
type Repositories struct {
	Blocks      *BlockRepository
	RateLimits  *RateLimitRepository
	Credentials *CredentialRepository
	Health      *HealthRepository
}

// NewRepositories creates a full set of empty mocks.
func NewRepositories() *Repositories {
	return &Repositories{
		Blocks:      NewBlockRepository(),
		RateLimits:  NewRateLimitRepository(),
		Credentials: NewCredentialRepository(),
		Health:      &HealthRepository{Name: "mock"},
	}
}

// Repositories returns the mocks as a repository.Repositories.
func (m *Repositories) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Blocks:         m.Blocks,
		RateLimits:     m.RateLimits,
		Credentials:    m.Credentials,
		Health:         []repository.HealthRepository{m.Health},
		DatabaseType:   repository.DatabaseTypeSQLite,
		AdmissionStore: repository.AdmissionStoreSQL,
	}
}
