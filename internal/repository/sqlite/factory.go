package sqlite

import (
	"database/sql"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// NewRepositories creates all SQLite repository implementations.
// The db parameter must be a valid, open database connection with the
// schema applied (see database.Initialize).
//
// Cleanup closes the database connection.
func NewRepositories(db *sql.DB) (*repository.Repositories, error) {
	if db == nil {
		return nil, repository.ErrNilDatabase
	}

	return &repository.Repositories{
		Blocks:         NewBlockRepository(db),
		RateLimits:     NewRateLimitRepository(db),
		Credentials:    NewCredentialRepository(db),
		Health:         []repository.HealthRepository{NewHealthRepository(db)},
		DatabaseType:   repository.DatabaseTypeSQLite,
		AdmissionStore: repository.AdmissionStoreSQL,
		Cleanup: func() {
			db.Close()
		},
	}, nil
}
