package repository

import (
	"context"
	"time"
)

// MaxWindowCount caps the stored request counter so a runaway client cannot
// overflow it.
const MaxWindowCount = 1_000_000_000

// RateLimitWindow represents the fixed-window counter for an identity/endpoint pair.
type RateLimitWindow struct {
	Identity    string    `json:"identity"`
	Endpoint    string    `json:"endpoint"`
	Count       int       `json:"count"`        // Requests observed in the current window
	WindowStart time.Time `json:"window_start"` // When the current window began
	LastRequest time.Time `json:"last_request"`
}

// RateLimitResult is the outcome of a single CheckAndIncrement call.
type RateLimitResult struct {
	Allowed     bool
	Count       int
	Remaining   int
	WindowStart time.Time
	ResetAt     time.Time
	RetryAfter  int // seconds; zero when allowed
}

// NewRateLimitResult derives the decision fields from the stored counter.
// Every backend funnels through here so the threshold math is identical.
func NewRateLimitResult(count, maxRequests int, windowStart time.Time, window time.Duration, now time.Time) *RateLimitResult {
	res := &RateLimitResult{
		Allowed:     count <= maxRequests,
		Count:       count,
		WindowStart: windowStart,
		ResetAt:     windowStart.Add(window),
	}
	if remaining := maxRequests - count; remaining > 0 {
		res.Remaining = remaining
	}
	if !res.Allowed {
		res.RetryAfter = RetryAfterSeconds(res.ResetAt, now)
	}
	return res
}

// RetryAfterSeconds rounds the time until resetAt up to whole seconds, minimum 1.
func RetryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RateLimitRepository defines the persistent fixed-window rate limit counter.
// State lives entirely in storage so that any number of instances share it.
type RateLimitRepository interface {
	// CheckAndIncrement atomically reads-or-creates the (identity, endpoint)
	// window and counts this request. If now - windowStart >= window the
	// window restarts with count=1; otherwise the count increments.
	// The very first request for a key counts as 1.
	//
	// Implementations must perform the read-modify-write as a single storage
	// operation so concurrent callers never observe the same count.
	CheckAndIncrement(ctx context.Context, identity, endpoint string, maxRequests int, window time.Duration, now time.Time) (*RateLimitResult, error)

	// GetEntry retrieves the window for an identity/endpoint combination.
	// Returns nil, nil if no entry exists.
	GetEntry(ctx context.Context, identity, endpoint string) (*RateLimitWindow, error)

	// ResetEntry deletes the window for an identity/endpoint combination.
	// Used by the admin console to lift a rate limit early.
	ResetEntry(ctx context.Context, identity, endpoint string) error

	// CleanupExpired removes windows that started before the cutoff.
	// Returns the number of entries removed.
	CleanupExpired(ctx context.Context, before time.Time) (int64, error)

	// ListForIdentity retrieves all windows for an identity, newest activity first.
	ListForIdentity(ctx context.Context, identity string) ([]RateLimitWindow, error)
}
