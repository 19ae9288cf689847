package repository

// DatabaseType identifies the SQL backend holding credentials and, unless
// Redis is configured, the admission state.
type DatabaseType string

const (
	DatabaseTypeSQLite     DatabaseType = "sqlite"
	DatabaseTypePostgreSQL DatabaseType = "postgresql"
)

// AdmissionStore selects where the block registry and rate limit windows live.
type AdmissionStore string

const (
	AdmissionStoreSQL   AdmissionStore = "sql"
	AdmissionStoreRedis AdmissionStore = "redis"
)

// Repositories holds all repository implementations.
// This struct provides a single point of access to all data access layers.
type Repositories struct {
	Blocks      BlockRepository
	RateLimits  RateLimitRepository
	Credentials CredentialRepository

	// Health lists one probe per backend in use (SQL first, then Redis if any).
	Health []HealthRepository

	DatabaseType   DatabaseType
	AdmissionStore AdmissionStore

	// Cleanup releases connections. May be nil.
	Cleanup func()
}

// Close runs Cleanup if set.
func (r *Repositories) Close() {
	if r != nil && r.Cleanup != nil {
		r.Cleanup()
	}
}
