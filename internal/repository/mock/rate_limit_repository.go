package mock

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

type windowKey struct {
	identity string
	endpoint string
}

// RateLimitRepository is a mock implementation of repository.RateLimitRepository.
// CheckAndIncrement follows the same fixed-window rules as the real backends.
type RateLimitRepository struct {
	mu      sync.Mutex
	windows map[windowKey]*repository.RateLimitWindow

	// Error injection for testing
	// NOTE: Set these BEFORE concurrent access begins
	CheckAndIncrementError error
	GetEntryError          error
	ResetEntryError        error
	CleanupExpiredError    error

	CheckAndIncrementCalls int
	CleanupCalls           int
}

// NewRateLimitRepository creates an empty mock counter store.
func NewRateLimitRepository() *RateLimitRepository {
	return &RateLimitRepository{windows: make(map[windowKey]*repository.RateLimitWindow)}
}

var _ repository.RateLimitRepository = (*RateLimitRepository)(nil)

// CheckAndIncrement implements repository.RateLimitRepository.
func (r *RateLimitRepository) CheckAndIncrement(ctx context.Context, identity, endpoint string, maxRequests int, window time.Duration, now time.Time) (*repository.RateLimitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CheckAndIncrementCalls++

	if r.CheckAndIncrementError != nil {
		return nil, r.CheckAndIncrementError
	}
	if maxRequests <= 0 || window <= 0 {
		return nil, fmt.Errorf("%w: invalid limit", repository.ErrInvalidInput)
	}

	key := windowKey{identity, endpoint}
	w, ok := r.windows[key]
	switch {
	case !ok:
		w = &repository.RateLimitWindow{Identity: identity, Endpoint: endpoint, Count: 1, WindowStart: now}
		r.windows[key] = w
	case now.Sub(w.WindowStart) >= window:
		w.Count = 1
		w.WindowStart = now
	default:
		w.Count = min(w.Count+1, repository.MaxWindowCount)
	}
	w.LastRequest = now

	return repository.NewRateLimitResult(w.Count, maxRequests, w.WindowStart, window, now), nil
}

// GetEntry implements repository.RateLimitRepository.
func (r *RateLimitRepository) GetEntry(ctx context.Context, identity, endpoint string) (*repository.RateLimitWindow, error) {
	if r.GetEntryError != nil {
		return nil, r.GetEntryError
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[windowKey{identity, endpoint}]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// ResetEntry implements repository.RateLimitRepository.
func (r *RateLimitRepository) ResetEntry(ctx context.Context, identity, endpoint string) error {
	if r.ResetEntryError != nil {
		return r.ResetEntryError
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.windows, windowKey{identity, endpoint})
	return nil
}

// CleanupExpired implements repository.RateLimitRepository.
func (r *RateLimitRepository) CleanupExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CleanupCalls++

	if r.CleanupExpiredError != nil {
		return 0, r.CleanupExpiredError
	}

	var n int64
	for k, w := range r.windows {
		if w.WindowStart.Before(before) {
			delete(r.windows, k)
			n++
		}
	}
	return n, nil
}

// ListForIdentity implements repository.RateLimitRepository.
func (r *RateLimitRepository) ListForIdentity(ctx context.Context, identity string) ([]repository.RateLimitWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []repository.RateLimitWindow{}
	for k, w := range r.windows {
		if k.identity == identity {
			out = append(out, *w)
		}
	}
	slices.SortFunc(out, func(a, b repository.RateLimitWindow) int {
		if c := b.LastRequest.Compare(a.LastRequest); c != 0 {
			return c
		}
		return strings.Compare(a.Endpoint, b.Endpoint)
	})
	return out, nil
}
