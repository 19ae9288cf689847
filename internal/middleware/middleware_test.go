package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/admission"
	"github.com/fjmerc/velvetrope/internal/auth"
	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/repository/mock"
	"github.com/fjmerc/velvetrope/internal/utils"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repos    *mock.Repositories
	clock    *clockwork.FakeClock
	gate     *admission.Gate
	issuer   *auth.TokenIssuer
	resolver *utils.ClientIPResolver
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

	return &fixture{
		repos:    repos,
		clock:    clock,
		gate:     gate,
		issuer:   issuer,
		resolver: utils.NewClientIPResolver(utils.TrustProxyFalse, ""),
	}
}

// chain wraps h in the client IP resolver the way the server does.
func (f *fixture) chain(h http.Handler) http.Handler {
	return ClientIPMiddleware(f.resolver)(h)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
