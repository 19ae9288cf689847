// Package models holds the JSON request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// ErrorResponse is the JSON error response
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds, rate limited responses only
}

// Error codes shared by handlers and middleware.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountExists      = "ACCOUNT_EXISTS"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// HealthResponse is the JSON response for the health check endpoint
type HealthResponse struct {
	Status         string                       `json:"status"`
	UptimeSeconds  int64                        `json:"uptime_seconds"`
	DatabaseType   string                       `json:"database_type"`
	AdmissionStore string                       `json:"admission_store"`
	Components     []repository.ComponentHealth `json:"components"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   string    `json:"account"`
}

// AccountResponse describes the authenticated member.
type AccountResponse struct {
	Account   string    `json:"account"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// BlockListResponse lists the active blocks of one namespace.
type BlockListResponse struct {
	Namespace repository.Namespace         `json:"namespace"`
	Blocks    []repository.BlockedIdentity `json:"blocks"`
	Count     int                          `json:"count"`
}

// RateLimitListResponse lists the rate limit windows of one identity.
type RateLimitListResponse struct {
	Identity string                       `json:"identity"`
	Windows  []repository.RateLimitWindow `json:"windows"`
}
