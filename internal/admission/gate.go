// Package admission decides whether a request may proceed, combining the
// block registry and the per-endpoint fixed-window rate limit counter.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/metrics"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/utils"
)

// ErrNotConfigured is returned by NewGate when a dependency is missing.
var ErrNotConfigured = errors.New("admission gate is not configured")

// Components named in degraded-security log events.
const (
	componentBlockRegistry = "block_registry"
	componentRateLimiter   = "rate_limit_counter"
)

// Limits overrides an endpoint's policy for a single check. Zero fields keep
// the policy value.
type Limits struct {
	MaxRequests int
	Window      time.Duration
}

// Request identifies the caller and the endpoint being accessed.
type Request struct {
	Identity string // client IP; empty becomes "unknown"
	Endpoint string // policy and counter key; empty becomes "unknown"
	Limits   *Limits
}

// Gate is safe for concurrent use. All state lives in the repositories.
type Gate struct {
	blocks     repository.BlockRepository
	rateLimits repository.RateLimitRepository
	policies   *config.PolicySet
	clock      clockwork.Clock
	logger     *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock sets the clock used for windows and block expiry.
func WithClock(c clockwork.Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate builds a gate. It returns ErrNotConfigured if any dependency is nil
// so that the server refuses to start rather than admitting everything.
func NewGate(blocks repository.BlockRepository, rateLimits repository.RateLimitRepository, policies *config.PolicySet, opts ...Option) (*Gate, error) {
	switch {
	case blocks == nil:
		return nil, fmt.Errorf("%w: block repository is nil", ErrNotConfigured)
	case rateLimits == nil:
		return nil, fmt.Errorf("%w: rate limit repository is nil", ErrNotConfigured)
	case policies == nil:
		return nil, fmt.Errorf("%w: policy set is nil", ErrNotConfigured)
	}

	g := &Gate{
		blocks:     blocks,
		rateLimits: rateLimits,
		policies:   policies,
		clock:      clockwork.NewRealClock(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Check runs the IP block check and then counts the request against the
// endpoint's window. It never returns an error: storage failures resolve to
// an allowed-but-degraded or a 503 decision according to the endpoint policy.
func (g *Gate) Check(ctx context.Context, req Request) Decision {
	identity := normalize(req.Identity)
	if repository.ValidateIdentity(identity) != nil {
		identity = utils.UnknownIdentity
	}
	endpoint := normalize(req.Endpoint)
	if repository.ValidateEndpoint(endpoint) != nil {
		endpoint = utils.UnknownIdentity
	}

	policy := g.policies.PolicyFor(endpoint)
	if req.Limits != nil {
		if req.Limits.MaxRequests > 0 {
			policy.MaxRequests = req.Limits.MaxRequests
		}
		if req.Limits.Window > 0 {
			policy.Window = max(req.Limits.Window, time.Millisecond)
		}
	}

	start := time.Now()
	d := g.check(ctx, identity, endpoint, policy)
	metrics.AdmissionCheckDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	metrics.AdmissionDecisionsTotal.WithLabelValues(endpoint, outcome(d)).Inc()
	return d
}

func (g *Gate) check(ctx context.Context, identity, endpoint string, policy config.EndpointPolicy) Decision {
	now := g.clock.Now()

	blocked, block, err := g.blocks.IsBlocked(ctx, repository.NamespaceIP, identity, now)
	if errors.Is(err, repository.ErrInvalidInput) {
		return g.rejectMalformed(policy, identity, endpoint, err)
	}
	if err != nil {
		return g.storageFailure(policy, identity, endpoint, componentBlockRegistry, err)
	}
	if blocked {
		g.logger.Warn("blocked IP attempted access",
			"ip", identity,
			"endpoint", endpoint,
			"blocked_by", block.BlockedBy,
		)
		return deny(http.StatusForbidden, CodeIPBlocked, MessageIPBlocked)
	}

	res, err := g.rateLimits.CheckAndIncrement(ctx, identity, endpoint, policy.MaxRequests, policy.Window, now)
	if errors.Is(err, repository.ErrInvalidInput) {
		return g.rejectMalformed(policy, identity, endpoint, err)
	}
	if err != nil {
		return g.storageFailure(policy, identity, endpoint, componentRateLimiter, err)
	}

	if !res.Allowed {
		if res.Count > policy.AutoBlockThreshold() {
			g.autoBlock(ctx, identity, endpoint, res.Count, policy, now)
		}

		g.logger.Warn("rate limit exceeded",
			"ip", identity,
			"endpoint", endpoint,
			"limit", policy.MaxRequests,
			"count", res.Count,
		)
		d := deny(http.StatusTooManyRequests, CodeRateLimitExceeded, MessageRateLimitExceeded)
		d.RetryAfter = res.RetryAfter
		resetAt := res.ResetAt
		d.ResetAt = &resetAt
		return d
	}

	return allow(res.Remaining, res.ResetAt)
}

// CheckAccount rejects requests from accounts in the account namespace. It
// applies the storage-failure policy of the "account" pseudo-endpoint.
func (g *Gate) CheckAccount(ctx context.Context, account string) Decision {
	account = NormalizeAccount(account)
	endpoint := config.EndpointAccount
	policy := g.policies.PolicyFor(endpoint)

	d := g.checkAccount(ctx, account, endpoint, policy)
	metrics.AdmissionDecisionsTotal.WithLabelValues(endpoint, outcome(d)).Inc()
	return d
}

func (g *Gate) checkAccount(ctx context.Context, account, endpoint string, policy config.EndpointPolicy) Decision {
	blocked, _, err := g.blocks.IsBlocked(ctx, repository.NamespaceAccount, account, g.clock.Now())
	if errors.Is(err, repository.ErrInvalidInput) {
		g.logger.Warn("rejected malformed account", "endpoint", endpoint, "error", err)
		return deny(http.StatusForbidden, CodeAccountBlocked, MessageAccountBlocked)
	}
	if err != nil {
		return g.storageFailure(policy, account, endpoint, componentBlockRegistry, err)
	}
	if blocked {
		g.logger.Warn("blocked account attempted access", "account", account)
		return deny(http.StatusForbidden, CodeAccountBlocked, MessageAccountBlocked)
	}
	return Decision{Allowed: true, Status: http.StatusOK}
}

// autoBlock writes the automatic IP block. Failures are logged only; the
// caller still answers 429.
func (g *Gate) autoBlock(ctx context.Context, identity, endpoint string, count int, policy config.EndpointPolicy, now time.Time) {
	expires := now.Add(policy.AutoBlockDuration)
	err := g.blocks.Block(ctx, repository.BlockRequest{
		Namespace: repository.NamespaceIP,
		Identity:  identity,
		Reason:    fmt.Sprintf("Automatic block: %d requests to %s", count, endpoint),
		BlockedBy: repository.BlockedByAutomatic,
		ExpiresAt: &expires,
		Now:       now,
	})
	if err != nil {
		metrics.AutoBlocksTotal.WithLabelValues("failure").Inc()
		g.logger.Error("failed to write automatic block",
			"ip", identity,
			"endpoint", endpoint,
			"count", count,
			"error", err,
		)
		return
	}

	metrics.AutoBlocksTotal.WithLabelValues("success").Inc()
	g.logger.Warn("IP automatically blocked",
		"ip", identity,
		"endpoint", endpoint,
		"count", count,
		"threshold", policy.AutoBlockThreshold(),
		"expires_at", expires,
	)
}

// rejectMalformed denies input the store refused as invalid. It is never
// treated as an outage, so the fail-open policy does not apply.
func (g *Gate) rejectMalformed(policy config.EndpointPolicy, identity, endpoint string, err error) Decision {
	g.logger.Warn("rejected malformed admission input",
		"identity", truncate(identity, repository.MaxIdentityLength),
		"endpoint", endpoint,
		"error", err,
	)
	d := deny(http.StatusTooManyRequests, CodeRateLimitExceeded, MessageRateLimitExceeded)
	d.RetryAfter = max(int((policy.Window+time.Second-1)/time.Second), 1)
	return d
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (g *Gate) storageFailure(policy config.EndpointPolicy, identity, endpoint, component string, err error) Decision {
	metrics.AdmissionStorageErrorsTotal.WithLabelValues(component, string(policy.OnStorageError)).Inc()

	if policy.OnStorageError == config.OnStorageErrorDeny {
		g.logger.Error("admission storage unavailable, failing closed",
			"identity", identity,
			"endpoint", endpoint,
			"component", component,
			"error", err,
		)
		return unavailable()
	}

	g.logger.Warn("admission storage unavailable, failing open",
		"security_degraded", true,
		"identity", identity,
		"endpoint", endpoint,
		"component", component,
		"error", err,
	)
	return degraded()
}

func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return utils.UnknownIdentity
	}
	return s
}

// NormalizeAccount lowercases and trims an account identifier so that block
// lookups match regardless of how the member typed it.
func NormalizeAccount(account string) string {
	return normalize(strings.ToLower(account))
}

func outcome(d Decision) string {
	switch {
	case d.Degraded:
		return metrics.OutcomeDegraded
	case d.Allowed:
		return metrics.OutcomeAllowed
	case d.Status == http.StatusForbidden:
		return metrics.OutcomeBlocked
	case d.Status == http.StatusTooManyRequests:
		return metrics.OutcomeRateLimited
	default:
		return metrics.OutcomeUnavailable
	}
}
