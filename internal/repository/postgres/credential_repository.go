package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// CredentialRepository implements repository.CredentialRepository for PostgreSQL.
type CredentialRepository struct {
	pool *Pool
}

// NewCredentialRepository creates a new PostgreSQL credential repository.
func NewCredentialRepository(pool *Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Get returns the credential for identity.
func (r *CredentialRepository) Get(ctx context.Context, identity string) (*repository.Credential, error) {
	c := repository.Credential{Identity: identity}

	err := r.pool.QueryRow(ctx,
		`SELECT encoded_hash, created_at, updated_at FROM credentials WHERE identity = $1`, identity,
	).Scan(&c.EncodedHash, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &c, nil
}

// Create inserts a new credential.
func (r *CredentialRepository) Create(ctx context.Context, identity, encodedHash string, now time.Time) error {
	if err := validateCredential(identity, encodedHash); err != nil {
		return err
	}

	_, err := execWithRetry(ctx, r.pool,
		`INSERT INTO credentials (identity, encoded_hash, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		identity, encodedHash, now)
	if isUniqueViolation(err) {
		return repository.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the credential, keeping created_at.
func (r *CredentialRepository) Upsert(ctx context.Context, identity, encodedHash string, now time.Time) error {
	if err := validateCredential(identity, encodedHash); err != nil {
		return err
	}

	_, err := execWithRetry(ctx, r.pool,
		`INSERT INTO credentials (identity, encoded_hash, created_at, updated_at) VALUES ($1, $2, $3, $3)
		 ON CONFLICT (identity) DO UPDATE SET encoded_hash = EXCLUDED.encoded_hash, updated_at = EXCLUDED.updated_at`,
		identity, encodedHash, now)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// Delete removes the credential.
func (r *CredentialRepository) Delete(ctx context.Context, identity string) error {
	tag, err := execWithRetry(ctx, r.pool, `DELETE FROM credentials WHERE identity = $1`, identity)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func validateCredential(identity, encodedHash string) error {
	if err := repository.ValidateIdentity(identity); err != nil {
		return err
	}
	if encodedHash == "" {
		return fmt.Errorf("%w: encoded hash cannot be empty", repository.ErrInvalidInput)
	}
	return nil
}
