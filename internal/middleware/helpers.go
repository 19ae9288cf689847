// Package middleware provides the HTTP middleware chain: request logging,
// panic recovery, security headers, admission control and authentication.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fjmerc/velvetrope/internal/models"
	"github.com/fjmerc/velvetrope/internal/utils"
)

type contextKey int

const (
	clientIPKey contextKey = iota
	accountKey
	adminKey
	requestIDKey
)

// ClientIP returns the client IP resolved by ClientIPMiddleware, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return utils.UnknownIdentity
}

// Account returns the member account set by MemberAuth.
func Account(ctx context.Context) (string, bool) {
	account, ok := ctx.Value(accountKey).(string)
	return account, ok
}

// Admin returns the administrator username set by AdminAuth.
func Admin(ctx context.Context) (string, bool) {
	admin, ok := ctx.Value(adminKey).(string)
	return admin, ok
}

// RequestID returns the ID assigned by LoggingMiddleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ClientIPMiddleware resolves the client IP once per request.
func ClientIPMiddleware(resolver *utils.ClientIPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPKey, resolver.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteError writes a JSON ErrorResponse. A positive retryAfter also sets
// the Retry-After header.
func WriteError(w http.ResponseWriter, status int, code, message string, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:      message,
		Code:       code,
		RetryAfter: retryAfter,
	})
}
