package mock

import (
	"context"
	"sync"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// CredentialRepository is a mock implementation of repository.CredentialRepository.
type CredentialRepository struct {
	mu    sync.RWMutex
	creds map[string]*repository.Credential

	// Error injection for testing
	GetError    error
	CreateError error
	UpsertError error
	DeleteError error
}

// NewCredentialRepository creates an empty mock credential store.
func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{creds: make(map[string]*repository.Credential)}
}

var _ repository.CredentialRepository = (*CredentialRepository)(nil)

// Get implements repository.CredentialRepository.
func (r *CredentialRepository) Get(ctx context.Context, identity string) (*repository.Credential, error) {
	if r.GetError != nil {
		return nil, r.GetError
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.creds[identity]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Create implements repository.CredentialRepository.
func (r *CredentialRepository) Create(ctx context.Context, identity, encodedHash string, now time.Time) error {
	if r.CreateError != nil {
		return r.CreateError
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.creds[identity]; ok {
		return repository.ErrDuplicateKey
	}
	r.creds[identity] = &repository.Credential{Identity: identity, EncodedHash: encodedHash, CreatedAt: now, UpdatedAt: now}
	return nil
}

// Upsert implements repository.CredentialRepository.
func (r *CredentialRepository) Upsert(ctx context.Context, identity, encodedHash string, now time.Time) error {
	if r.UpsertError != nil {
		return r.UpsertError
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.creds[identity]; ok {
		c.EncodedHash = encodedHash
		c.UpdatedAt = now
		return nil
	}
	r.creds[identity] = &repository.Credential{Identity: identity, EncodedHash: encodedHash, CreatedAt: now, UpdatedAt: now}
	return nil
}

// Delete implements repository.CredentialRepository.
func (r *CredentialRepository) Delete(ctx context.Context, identity string) error {
	if r.DeleteError != nil {
		return r.DeleteError
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.creds[identity]; !ok {
		return repository.ErrNotFound
	}
	delete(r.creds, identity)
	return nil
}
