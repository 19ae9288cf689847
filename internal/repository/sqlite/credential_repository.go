package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// CredentialRepository implements repository.CredentialRepository for SQLite.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new SQLite credential repository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Get returns the credential for identity.
func (r *CredentialRepository) Get(ctx context.Context, identity string) (*repository.Credential, error) {
	c := repository.Credential{Identity: identity}
	var createdAt, updatedAt int64

	err := r.db.QueryRowContext(ctx,
		`SELECT encoded_hash, created_at, updated_at FROM credentials WHERE identity = ?`, identity,
	).Scan(&c.EncodedHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// Create inserts a new credential.
func (r *CredentialRepository) Create(ctx context.Context, identity, encodedHash string, now time.Time) error {
	if err := validateCredential(identity, encodedHash); err != nil {
		return err
	}

	_, err := execWithRetry(ctx, r.db,
		`INSERT INTO credentials (identity, encoded_hash, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		identity, encodedHash, toMillis(now), toMillis(now))
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

	_, err := execWithRetry(ctx, r.db,
		`INSERT INTO credentials (identity, encoded_hash, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET encoded_hash = excluded.encoded_hash, updated_at = excluded.updated_at`,
		identity, encodedHash, toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// Delete removes the credential.
func (r *CredentialRepository) Delete(ctx context.Context, identity string) error {
	result, err := execWithRetry(ctx, r.db, `DELETE FROM credentials WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
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
