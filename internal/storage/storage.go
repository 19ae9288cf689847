// Package storage opens the configured backends and returns the repositories
// the rest of the application works against. SQL (SQLite or PostgreSQL) always
// holds credentials; the admission state lives in SQL or, with
// ADMISSION_STORE=redis, in Redis.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/database"
	"github.com/fjmerc/velvetrope/internal/repository"
	"github.com/fjmerc/velvetrope/internal/repository/postgres"
	"github.com/fjmerc/velvetrope/internal/repository/redis"
	"github.com/fjmerc/velvetrope/internal/repository/sqlite"
)

// Open connects to every configured backend. The caller must call Close on
// the result.
func Open(ctx context.Context, cfg *config.Config) (*repository.Repositories, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}

	repos, err := openSQL(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AdmissionStore == config.AdmissionStoreRedis {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			repos.Close()
			return nil, err
		}
		if err := redis.Overlay(repos, client, cfg.Redis.KeyPrefix); err != nil {
			client.Close()
			repos.Close()
			return nil, err
		}
		slog.Info("admission state stored in Redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	}

	return repos, nil
}

func openSQL(ctx context.Context, cfg *config.Config) (*repository.Repositories, error) {
	switch cfg.DBType {
	case config.DBTypeSQLite:
		db, err := database.Initialize(ctx, cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite database: %w", err)
		}
		repos, err := sqlite.NewRepositories(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("using SQLite storage", "path", cfg.DBPath)
		return repos, nil

	case config.DBTypePostgreSQL:
		repos, err := postgres.NewRepositories(ctx, cfg.PostgreSQL)
		if err != nil {
			return nil, err
		}
		slog.Info("using PostgreSQL storage",
			"host", cfg.PostgreSQL.Host,
			"port", cfg.PostgreSQL.Port,
			"database", cfg.PostgreSQL.Database,
		)
		return repos, nil

	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", cfg.DBType)
	}
}
