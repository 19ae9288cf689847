package admission

import (
	"net/http"
	"time"
)

// Error messages carried by denied decisions.
const (
	MessageIPBlocked          = "IP address blocked."
	MessageAccountBlocked     = "Account blocked."
	MessageRateLimitExceeded  = "Rate limit exceeded."
	MessageServiceUnavailable = "Service temporarily unavailable."
)

// Machine-readable codes for denied decisions.
const (
	CodeIPBlocked          = "IP_BLOCKED"
	CodeAccountBlocked     = "ACCOUNT_BLOCKED"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool       `json:"allowed"`
	Status     int        `json:"status"`
	Remaining  *int       `json:"remaining,omitempty"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
	RetryAfter int        `json:"retry_after,omitempty"` // seconds, 429 only
	Error      string     `json:"error,omitempty"`

	// Code is the machine-readable form of Error.
	Code string `json:"-"`

	// Degraded marks a request admitted without a working store.
	Degraded bool `json:"-"`
}

func allow(remaining int, resetAt time.Time) Decision {
	return Decision{
		Allowed:   true,
		Status:    http.StatusOK,
		Remaining: &remaining,
		ResetAt:   &resetAt,
	}
}

func deny(status int, code, message string) Decision {
	return Decision{Status: status, Code: code, Error: message}
}

func degraded() Decision {
	return Decision{Allowed: true, Status: http.StatusOK, Degraded: true}
}

func unavailable() Decision {
	return deny(http.StatusServiceUnavailable, CodeServiceUnavailable, MessageServiceUnavailable)
}
