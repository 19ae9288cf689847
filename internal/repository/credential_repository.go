package repository

import (
	"context"
	"time"
)

// Credential is a stored secret for a member or administrator.
// EncodedHash is opaque to storage; only utils.VerifyPassword interprets it.
type Credential struct {
	Identity    string    `json:"identity"`
	EncodedHash string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AdminIdentityPrefix namespaces administrator credentials inside the
// credentials table so they cannot collide with member emails.
const AdminIdentityPrefix = "admin:"

// CredentialRepository stores encoded password records keyed by identity.
//
// SECURITY: implementations MUST NOT log encoded hashes.
type CredentialRepository interface {
	// Get returns the credential for identity, or ErrNotFound.
	Get(ctx context.Context, identity string) (*Credential, error)

	// Create inserts a new credential. Returns ErrDuplicateKey if the identity exists.
	Create(ctx context.Context, identity, encodedHash string, now time.Time) error

	// Upsert inserts or replaces the credential for identity.
	Upsert(ctx context.Context, identity, encodedHash string, now time.Time) error

	// Delete removes the credential. Returns ErrNotFound if absent.
	Delete(ctx context.Context, identity string) error
}
