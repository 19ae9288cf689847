package repository

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestErrorVariables(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrNotFound", ErrNotFound, "entity not found"},
		{"ErrDuplicateKey", ErrDuplicateKey, "duplicate key"},
		{"ErrInvalidInput", ErrInvalidInput, "invalid input"},
		{"ErrNilDatabase", ErrNilDatabase, "nil database connection"},
		{"ErrServiceUnavailable", ErrServiceUnavailable, "service temporarily unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("%s.Error() = %q, want %q", tt.name, tt.err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestNamespaceValidate(t *testing.T) {
	for _, ns := range []Namespace{NamespaceIP, NamespaceAccount} {
		if err := ns.Validate(); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", ns, err)
		}
	}
	if err := Namespace("email").Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Validate(email) = %v, want ErrInvalidInput", err)
	}
}

func TestValidateIdentity(t *testing.T) {
	if err := ValidateIdentity(""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty identity: got %v", err)
	}
	if err := ValidateIdentity(strings.Repeat("a", MaxIdentityLength+1)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("long identity: got %v", err)
	}
	if err := ValidateIdentity("1.2.3.4"); err != nil {
		t.Errorf("valid identity: got %v", err)
	}
}

func TestBlockRequestValidate(t *testing.T) {
	now := time.Now()
	valid := BlockRequest{Namespace: NamespaceIP, Identity: "1.2.3.4", BlockedBy: "admin@example.com", Now: now}

	tests := []struct {
		name    string
		mutate  func(r *BlockRequest)
		wantErr bool
	}{
		{"valid", func(r *BlockRequest) {}, false},
		{"bad namespace", func(r *BlockRequest) { r.Namespace = "x" }, true},
		{"empty identity", func(r *BlockRequest) { r.Identity = "" }, true},
		{"long reason", func(r *BlockRequest) { r.Reason = strings.Repeat("r", MaxReasonLength+1) }, true},
		{"no blocker", func(r *BlockRequest) { r.BlockedBy = "" }, true},
		{"zero time", func(r *BlockRequest) { r.Now = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBlockedIdentityIsEffective(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		b    *BlockedIdentity
		want bool
	}{
		{"nil", nil, false},
		{"inactive", &BlockedIdentity{Active: false}, false},
		{"indefinite", &BlockedIdentity{Active: true}, true},
		{"future expiry", &BlockedIdentity{Active: true, ExpiresAt: &future}, true},
		{"past expiry", &BlockedIdentity{Active: true, ExpiresAt: &past}, false},
		{"expires exactly now", &BlockedIdentity{Active: true, ExpiresAt: &now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.IsEffective(now); got != tt.want {
				t.Errorf("IsEffective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRateLimitResult(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	window := 60 * time.Second

	t.Run("allowed", func(t *testing.T) {
		res := NewRateLimitResult(1, 10, start, window, start)
		if !res.Allowed || res.Remaining != 9 || res.RetryAfter != 0 {
			t.Errorf("got %+v", res)
		}
		if !res.ResetAt.Equal(start.Add(window)) {
			t.Errorf("ResetAt = %v, want %v", res.ResetAt, start.Add(window))
		}
	})

	t.Run("at limit", func(t *testing.T) {
		res := NewRateLimitResult(10, 10, start, window, start)
		if !res.Allowed || res.Remaining != 0 {
			t.Errorf("got %+v", res)
		}
	})

	t.Run("over limit rounds retry up", func(t *testing.T) {
		res := NewRateLimitResult(11, 10, start, window, start.Add(5500*time.Millisecond))
		if res.Allowed {
			t.Fatal("expected denial")
		}
		if res.Remaining != 0 {
			t.Errorf("Remaining = %d, want 0", res.Remaining)
		}
		if res.RetryAfter != 55 {
			t.Errorf("RetryAfter = %d, want 55", res.RetryAfter)
		}
	})
}

func TestRetryAfterSecondsMinimum(t *testing.T) {
	now := time.Now()
	if got := RetryAfterSeconds(now, now); got != 1 {
		t.Errorf("RetryAfterSeconds(now, now) = %d, want 1", got)
	}
	if got := RetryAfterSeconds(now.Add(-time.Minute), now); got != 1 {
		t.Errorf("past reset = %d, want 1", got)
	}
	if got := RetryAfterSeconds(now.Add(1001*time.Millisecond), now); got != 2 {
		t.Errorf("1001ms = %d, want 2", got)
	}
}
