package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/admission"
	"github.com/fjmerc/velvetrope/internal/auth"
	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/middleware"
	"github.com/fjmerc/velvetrope/internal/repository/mock"
	"github.com/fjmerc/velvetrope/internal/utils"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repos  *mock.Repositories
	clock  *clockwork.FakeClock
	gate   *admission.Gate
	issuer *auth.TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repos := mock.NewRepositories()
	clock := clockwork.NewFakeClockAt(testEpoch)
	policies := config.DefaultPolicies(config.EndpointPolicy{
		MaxRequests:         10,
		Window:              time.Minute,
		OnStorageError:      config.OnStorageErrorAllow,
		AutoBlockMultiplier: 3,
		AutoBlockDuration:   time.Hour,
	})

	gate, err := admission.NewGate(repos.Blocks, repos.RateLimits, policies, admission.WithClock(clock))
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}
	issuer, err := auth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour, clock)
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}

	return &fixture{repos: repos, clock: clock, gate: gate, issuer: issuer}
}

// createMember stores a member credential directly.
func (f *fixture) createMember(t *testing.T, email, password string) {
	t.Helper()
	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := f.repos.Credentials.Create(t.Context(), email, hash, testEpoch); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

// member wraps h in bearer authentication.
func (f *fixture) member(h http.Handler) http.Handler {
	resolver := utils.NewClientIPResolver(utils.TrustProxyFalse, "")
	return middleware.ClientIPMiddleware(resolver)(middleware.MemberAuth(f.issuer, f.gate)(h))
}

func (f *fixture) token(t *testing.T, account string) string {
	t.Helper()
	token, _, err := f.issuer.Issue(account)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return token
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}
