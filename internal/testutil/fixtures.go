package testutil

import (
	"testing"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/utils"
)

// BlockOption customizes a seeded block.
type BlockOption func(*repository.BlockRequest)

// WithReason sets the block reason.
func WithReason(reason string) BlockOption {
	return func(r *repository.BlockRequest) { r.Reason = reason }
}

// WithExpiry makes the block expire d after Epoch.
func WithExpiry(d time.Duration) BlockOption {
	return func(r *repository.BlockRequest) {
		t := Epoch.Add(d)
		r.ExpiresAt = &t
	}
}

// WithBlockedBy sets who placed the block.
func WithBlockedBy(by string) BlockOption {
	return func(r *repository.BlockRequest) { r.BlockedBy = by }
}

// SeedBlock blocks identity at Epoch. Defaults: indefinite, blocked by "admin".
func SeedBlock(t *testing.T, blocks repository.BlockRepository, ns repository.Namespace, identity string, opts ...BlockOption) {
	t.Helper()

	req := repository.BlockRequest{
		Namespace: ns,
		Identity:  identity,
		Reason:    "test block",
		BlockedBy: "admin",
		Now:       Epoch,
	}
	for _, opt := range opts {
		opt(&req)
	}

	if err := blocks.Block(t.Context(), req); err != nil {
		t.Fatalf("failed to seed block: %v", err)
	}
}

// SeedMember stores a member credential for email created at Epoch.
func SeedMember(t *testing.T, creds repository.CredentialRepository, email, password string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := creds.Create(t.Context(), email, hash, Epoch); err != nil {
		t.Fatalf("failed to seed member: %v", err)
	}
}

// SeedAdmin stores the administrator credential for username.
func SeedAdmin(t *testing.T, creds repository.CredentialRepository, username, password string) {
	t.Helper()

	hash, err := utils.HashAdminPassword(password)
	if err != nil {
		t.Fatalf("failed to hash admin password: %v", err)
	}
	if err := creds.Upsert(t.Context(), repository.AdminIdentityPrefix+username, hash, Epoch); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}
}
