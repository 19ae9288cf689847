package main

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fjmerc/velvetrope/internal/admission"
	"github.com/fjmerc/velvetrope/internal/auth"
	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/handlers"
	"github.com/fjmerc/velvetrope/internal/metrics"
	"github.com/fjmerc/velvetrope/internal/middleware"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/utils"
)

type serverDeps struct {
	cfg        *config.Config
	repos      *repository.Repositories
	gate       *admission.Gate
	issuer     *auth.TokenIssuer
	clock      clockwork.Clock
	startTime  time.Time
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// newServer builds the routing table and the global middleware chain.
func newServer(d serverDeps) (http.Handler, error) {
	creds := d.repos.Credentials
	gated := func(endpoint string, h http.Handler) http.Handler {
		return middleware.Admission(d.gate, endpoint)(h)
	}
	member := middleware.MemberAuth(d.issuer, d.gate)

	mux := http.NewServeMux()

	// Member API
	mux.Handle("POST /api/auth/register", gated(config.EndpointRegister, handlers.RegisterHandler(creds, d.clock)))
	mux.Handle("POST /api/auth/login", gated(config.EndpointLogin, handlers.LoginHandler(creds, d.issuer, d.gate)))
	mux.Handle("GET /api/account", member(handlers.AccountHandler(creds)))
	mux.Handle("POST /api/account/password", gated(config.EndpointCredentialReset, member(handlers.ChangePasswordHandler(creds, d.clock))))
	mux.Handle("POST /api/account/delete", gated(config.EndpointAccountDelete, member(handlers.DeleteAccountHandler(creds))))

	// Admin console API
	if d.cfg.AdminUsername != "" {
		admin := func(h http.Handler) http.Handler {
			return gated(config.EndpointAdmin, middleware.AdminAuth(creds, d.cfg.AdminUsername)(h))
		}
		blocks, rateLimits := d.repos.Blocks, d.repos.RateLimits

		mux.Handle("GET /admin/api/blocks", admin(handlers.AdminListBlocksHandler(blocks, d.clock)))
		mux.Handle("POST /admin/api/blocks", admin(handlers.AdminBlockHandler(blocks, d.clock)))
		mux.Handle("POST /admin/api/blocks/{namespace}/{identity}/unblock", admin(handlers.AdminUnblockHandler(blocks)))
		mux.Handle("DELETE /admin/api/blocks/{namespace}/{identity}", admin(handlers.AdminPurgeBlockHandler(blocks)))
		mux.Handle("GET /admin/api/ratelimits/{identity}", admin(handlers.AdminListRateLimitsHandler(rateLimits)))
		mux.Handle("DELETE /admin/api/ratelimits/{identity}/{endpoint}", admin(handlers.AdminResetRateLimitHandler(rateLimits)))
	}

	// Operations
	mux.Handle("GET /health", handlers.HealthHandler(d.repos, d.clock, d.startTime))
	mux.Handle("GET /health/live", handlers.HealthLivenessHandler())
	metricsHandler, err := handlers.MetricsHandler(d.registerer, d.gatherer, d.repos.Blocks, d.clock.Now)
	if err != nil {
		return nil, err
	}
	mux.Handle("GET /metrics", metricsHandler)

	resolver := utils.NewClientIPResolver(d.cfg.TrustProxyHeaders, d.cfg.TrustedProxyIPs)

	// Apply middleware chain (order matters: recovery -> client IP -> logging -> metrics -> security -> routes)
	handler := middleware.RecoveryMiddleware(
		middleware.ClientIPMiddleware(resolver)(
			middleware.LoggingMiddleware(
				metrics.Middleware(
					middleware.SecurityHeadersMiddleware(mux),
				),
			),
		),
	)
	return handler, nil
}
