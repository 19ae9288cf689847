package repository

import (
	"context"
	"fmt"
	"time"
)

// BlockedIdentity represents one row of the block registry.
type BlockedIdentity struct {
	ID        int64      `json:"id,omitempty"`
	Namespace Namespace  `json:"namespace"`
	Identity  string     `json:"identity"`
	Reason    string     `json:"reason"`
	BlockedAt time.Time  `json:"blocked_at"`
	BlockedBy string     `json:"blocked_by"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"` // nil means indefinite
	Active    bool       `json:"active"`
}

// IsEffective reports whether the block is active and not expired at now.
func (b *BlockedIdentity) IsEffective(now time.Time) bool {
	if b == nil || !b.Active {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// BlockRequest carries the arguments of a block (or re-block) action.
type BlockRequest struct {
	Namespace Namespace
	Identity  string
	Reason    string
	BlockedBy string
	ExpiresAt *time.Time
	Now       time.Time
}

// Validate checks the request before it reaches storage.
func (r BlockRequest) Validate() error {
	if err := r.Namespace.Validate(); err != nil {
		return err
	}
	if err := ValidateIdentity(r.Identity); err != nil {
		return err
	}
	if len(r.Reason) > MaxReasonLength {
		return fmt.Errorf("%w: reason too long", ErrInvalidInput)
	}
	if r.BlockedBy == "" {
		return fmt.Errorf("%w: blocked_by cannot be empty", ErrInvalidInput)
	}
	if r.Now.IsZero() {
		return fmt.Errorf("%w: block time must be set", ErrInvalidInput)
	}
	return nil
}

// BlockRepository defines the persistent block registry.
// Implementations must be safe for concurrent use from multiple goroutines
// and multiple application instances.
type BlockRepository interface {
	// IsBlocked looks up the active, non-expired block for identity.
	// A row whose expiry is at or before now does not block.
	IsBlocked(ctx context.Context, ns Namespace, identity string, now time.Time) (bool, *BlockedIdentity, error)

	// Block inserts a block or, if one exists for (namespace, identity),
	// reactivates it and overwrites reason, blocked_at, blocked_by and expiry.
	// Calling it twice yields exactly one active row.
	Block(ctx context.Context, req BlockRequest) error

	// Unblock deactivates the block without deleting it.
	// Returns ErrNotFound if there is no active block.
	Unblock(ctx context.Context, ns Namespace, identity string) error

	// List returns active, non-expired blocks ordered by blocked_at descending.
	List(ctx context.Context, ns Namespace, now time.Time) ([]BlockedIdentity, error)

	// Purge hard-deletes the block row. Administrative use only.
	// Returns ErrNotFound if the row does not exist.
	Purge(ctx context.Context, ns Namespace, identity string) error
}
