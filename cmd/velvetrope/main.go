package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	"github.com/fjmerc/velvetrope/internal/admission"
	"github.com/fjmerc/velvetrope/internal/auth"
	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/storage"
	"github.com/fjmerc/velvetrope/internal/utils"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting velvetrope",
		"port", cfg.Port,
		"db_type", cfg.DBType,
		"admission_store", cfg.AdmissionStore,
		"admin_enabled", cfg.AdminUsername != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repos, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer repos.Close()

	clock := clockwork.NewRealClock()

	if cfg.AdminUsername != "" {
		if err := bootstrapAdmin(ctx, repos.Credentials, cfg.AdminUsername, cfg.AdminPassword, clock); err != nil {
			return err
		}
		slog.Info("admin credentials initialized", "username", cfg.AdminUsername)
	} else {
		slog.Info("admin console disabled - set ADMIN_USERNAME and ADMIN_PASSWORD to enable")
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret, err = auth.GenerateSecret()
		if err != nil {
			return err
		}
		slog.Warn("JWT_SECRET not set - using an ephemeral secret; member tokens will not survive a restart or work across instances")
	}
	issuer, err := auth.NewTokenIssuer(secret, cfg.JWTTTL(), clock)
	if err != nil {
		return err
	}

	gate, err := admission.NewGate(repos.Blocks, repos.RateLimits, cfg.Policies, admission.WithClock(clock))
	if err != nil {
		return err
	}

	pruner, err := admission.NewPruner(repos.RateLimits, cfg.RateLimitRetention(), cfg.PruneInterval(), admission.WithClock(clock))
	if err != nil {
		return err
	}
	pruner.Start(ctx)
	defer pruner.Stop()

	handler, err := newServer(serverDeps{
		cfg:        cfg,
		repos:      repos,
		gate:       gate,
		issuer:     issuer,
		clock:      clock,
		startTime:  clock.Now(),
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	if cfg.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxConnections)
		slog.Info("connection limit enabled", "max_connections", cfg.MaxConnections)
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "address", listener.Addr().String())
		serverErrors <- server.Serve(listener)
	}()

	// Wait for interrupt signal for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)

		// Stop background workers
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				slog.Error("server close failed", "error", err)
			}
			return err
		}

		slog.Info("server shutdown complete")
		return nil
	}
}

// bootstrapAdmin stores the configured administrator credential. An existing
// record that already matches and uses the current work factor is left alone.
func bootstrapAdmin(ctx context.Context, creds repository.CredentialRepository, username, password string, clock clockwork.Clock) error {
	identity := repository.AdminIdentityPrefix + username

	existing, err := creds.Get(ctx, identity)
	switch {
	case err == nil:
		if utils.VerifyPassword(existing.EncodedHash, password) && !utils.NeedsRehash(existing.EncodedHash) {
			return nil
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return fmt.Errorf("failed to load admin credentials: %w", err)
	}

	hash, err := utils.HashAdminPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	if err := creds.Upsert(ctx, identity, hash, clock.Now()); err != nil {
		return fmt.Errorf("failed to store admin credentials: %w", err)
	}
	return nil
}
