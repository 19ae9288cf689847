// Package redis stores admission state (block registry and rate limit
// windows) in Redis so that every application instance shares it without a
// relational database round trip. Credentials stay in the SQL backend.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/repository"
)

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*goredis.Client, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is not configured")
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// keyspace builds every key under a common prefix.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	if prefix == "" {
		prefix = "velvetrope"
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) block(ns repository.Namespace, identity string) string {
	return k.prefix + ":block:" + string(ns) + ":" + identity
}

func (k keyspace) blockIndex(ns repository.Namespace) string {
	return k.prefix + ":blocks:" + string(ns)
}

func (k keyspace) blockSeq() string {
	return k.prefix + ":block:seq"
}

// window length-prefixes the endpoint so that colons in either segment (IPv6
// identities, custom endpoint names) cannot make two pairs share a key.
func (k keyspace) window(identity, endpoint string) string {
	return k.prefix + ":rl:w:" + strconv.Itoa(len(endpoint)) + ":" + endpoint + ":" + identity
}

func (k keyspace) windowIndex() string {
	return k.prefix + ":rl:index"
}

func (k keyspace) identityEndpoints(identity string) string {
	return k.prefix + ":rl:e:" + identity
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return fromMillis(ms), nil
}
