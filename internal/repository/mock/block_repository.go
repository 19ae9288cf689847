// Package mock provides in-memory repository implementations with error
// injection for handler, middleware and admission tests.
package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

type blockKey struct {
	ns       repository.Namespace
	identity string
}

// BlockRepository is a mock implementation of repository.BlockRepository for testing.
//
// IMPORTANT: Error injection fields should be set BEFORE any concurrent
// operations begin. They are not protected by the mutex.
type BlockRepository struct {
	mu     sync.RWMutex
	blocks map[blockKey]*repository.BlockedIdentity
	nextID int64

	// Error injection for testing
	IsBlockedError error
	BlockError     error
	UnblockError   error
	ListError      error
	PurgeError     error

	// Call counters
	IsBlockedCalls int
	BlockCalls     int
}

// NewBlockRepository creates an empty mock block registry.
func NewBlockRepository() *BlockRepository {
	return &BlockRepository{
		blocks: make(map[blockKey]*repository.BlockedIdentity),
		nextID: 1,
	}
}

var _ repository.BlockRepository = (*BlockRepository)(nil)

// IsBlocked implements repository.BlockRepository.
func (r *BlockRepository) IsBlocked(ctx context.Context, ns repository.Namespace, identity string, now time.Time) (bool, *repository.BlockedIdentity, error) {
	r.mu.Lock()
	r.IsBlockedCalls++
	r.mu.Unlock()

	if r.IsBlockedError != nil {
		return false, nil, r.IsBlockedError
	}
	if err := ns.Validate(); err != nil {
		return false, nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.blocks[blockKey{ns, identity}]
	if !ok || !b.IsEffective(now) {
		return false, nil, nil
	}
	cp := *b
	return true, &cp, nil
}

// Block implements repository.BlockRepository.
func (r *BlockRepository) Block(ctx context.Context, req repository.BlockRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.BlockCalls++

	if r.BlockError != nil {
		return r.BlockError
	}
	if err := req.Validate(); err != nil {
		return err
	}

	key := blockKey{req.Namespace, req.Identity}
	b, ok := r.blocks[key]
	if !ok {
		b = &repository.BlockedIdentity{ID: r.nextID, Namespace: req.Namespace, Identity: req.Identity}
		r.nextID++
		r.blocks[key] = b
	}
	b.Reason = req.Reason
	b.BlockedAt = req.Now
	b.BlockedBy = req.BlockedBy
	b.Active = true
	b.ExpiresAt = nil
	if req.ExpiresAt != nil {
		t := *req.ExpiresAt
		b.ExpiresAt = &t
	}
	return nil
}

// Unblock implements repository.BlockRepository.
func (r *BlockRepository) Unblock(ctx context.Context, ns repository.Namespace, identity string) error {
	if r.UnblockError != nil {
		return r.UnblockError
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.blocks[blockKey{ns, identity}]
	if !ok || !b.Active {
		return repository.ErrNotFound
	}
	b.Active = false
	return nil
}

// List implements repository.BlockRepository.
func (r *BlockRepository) List(ctx context.Context, ns repository.Namespace, now time.Time) ([]repository.BlockedIdentity, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []repository.BlockedIdentity{}
	for k, b := range r.blocks {
		if k.ns == ns && b.IsEffective(now) {
			out = append(out, *b)
		}
	}
	slices.SortFunc(out, func(a, b repository.BlockedIdentity) int {
		if c := b.BlockedAt.Compare(a.BlockedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// Purge implements repository.BlockRepository.
func (r *BlockRepository) Purge(ctx context.Context, ns repository.Namespace, identity string) error {
	if r.PurgeError != nil {
		return r.PurgeError
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := blockKey{ns, identity}
	if _, ok := r.blocks[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.blocks, key)
	return nil
}

// Get returns a copy of the stored row regardless of active state, for assertions.
func (r *BlockRepository) Get(ns repository.Namespace, identity string) (repository.BlockedIdentity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.blocks[blockKey{ns, identity}]
	if !ok {
		return repository.BlockedIdentity{}, false
	}
	return *b, true
}
