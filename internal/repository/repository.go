// Package repository defines interfaces for data access operations.
// This package provides abstractions for the admission state (block registry,
// rate limit windows) and member credentials, allowing different backend
// implementations (SQLite, PostgreSQL, Redis) to be swapped without changing
// the admission gate or the HTTP handlers.
//
// Every admission operation takes the caller's notion of "now" explicitly so
// that all backends evaluate windows and expiry against the same clock.
package repository

import (
	"errors"
	"fmt"
)

// Common errors returned by repository operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateKey is returned when an insert violates a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNilDatabase is returned when a nil database connection is provided.
	ErrNilDatabase = errors.New("nil database connection")

	// ErrServiceUnavailable is returned when a service is temporarily unavailable.
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// Namespace partitions blocked identities so the same identity string cannot
// collide across categories.
type Namespace string

const (
	// NamespaceIP holds blocks keyed by client IP address.
	NamespaceIP Namespace = "ip"

	// NamespaceAccount holds blocks keyed by account identifier (email).
	NamespaceAccount Namespace = "account"
)

// BlockedByAutomatic is the blocked_by marker written by the admission gate.
const BlockedByAutomatic = "automatic"

// Validate returns ErrInvalidInput for unknown namespaces.
func (n Namespace) Validate() error {
	switch n {
	case NamespaceIP, NamespaceAccount:
		return nil
	default:
		return fmt.Errorf("%w: unknown namespace %q", ErrInvalidInput, string(n))
	}
}

// Field limits shared by all backends.
const (
	MaxIdentityLength = 320 // RFC 5321 path limit covers emails and IPv6 with zone
	MaxEndpointLength = 64
	MaxReasonLength   = 500
)

// ValidateIdentity checks that an identity is non-empty and within length limits.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: identity cannot be empty", ErrInvalidInput)
	}
	if len(identity) > MaxIdentityLength {
		return fmt.Errorf("%w: identity too long", ErrInvalidInput)
	}
	return nil
}

// ValidateEndpoint checks that an endpoint name is non-empty and within length limits.
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint cannot be empty", ErrInvalidInput)
	}
	if len(endpoint) > MaxEndpointLength {
		return fmt.Errorf("%w: endpoint too long", ErrInvalidInput)
	}
	return nil
}
