package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fjmerc/velvetrope/internal/metrics"
	"github.com/fjmerc/velvetrope/internal/repository"
)

// Pruner periodically deletes rate limit windows that started more than
// retention ago.
type Pruner struct {
	repo      repository.RateLimitRepository
	retention time.Duration
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewPruner creates a pruner. Retention must cover the longest policy window
// or live windows would be reset early.
func NewPruner(repo repository.RateLimitRepository, retention, interval time.Duration, opts ...Option) (*Pruner, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: rate limit repository is nil", ErrNotConfigured)
	}
	if retention <= 0 || interval <= 0 {
		return nil, fmt.Errorf("%w: retention and interval must be positive", ErrNotConfigured)
	}

	// Reuse Gate options for the clock and logger.
	g := &Gate{clock: clockwork.NewRealClock(), logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}

	return &Pruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		clock:     g.clock,
		logger:    g.logger,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// RunOnce deletes expired windows and returns how many were removed.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.clock.Now().Add(-p.retention)
	n, err := p.repo.CleanupExpired(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("failed to prune rate limit windows: %w", err)
	}
	metrics.PrunedWindowsTotal.Add(float64(n))
	return n, nil
}

// Start runs the pruning loop in a goroutine until Stop is called or ctx ends.
func (p *Pruner) Start(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)

	go func() {
		defer close(p.done)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				count, err := p.RunOnce(runCtx)
				cancel()
				if err != nil {
					p.logger.Error("failed to cleanup expired rate limits", "error", err)
				} else if count > 0 {
					p.logger.Debug("cleaned up expired rate limit entries", "count", count)
				}
			case <-p.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for it to exit. Safe to call more than once,
// but only after Start.
func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	<-p.done
}
