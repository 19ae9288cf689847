package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fjmerc/velvetrope/internal/config"
	"github.com/fjmerc/velvetrope/internal/repository"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestRedis starts an in-process Redis and returns a client bound to it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), &config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.Close()

	if _, err := NewClient(context.Background(), &config.RedisConfig{}); err == nil {
		t.Error("NewClient should fail without an address")
	}

	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewClient(ctx, &config.RedisConfig{Addr: addr}); err == nil {
		t.Error("NewClient should fail when Redis is down")
	}
}

func TestKeyspace(t *testing.T) {
	k := newKeyspace("")
	if got := k.block(repository.NamespaceIP, "10.0.0.1"); got != "velvetrope:block:ip:10.0.0.1" {
		t.Errorf("block key = %q", got)
	}
	if got := k.window("10.0.0.1", "login"); got != "velvetrope:rl:w:5:login:10.0.0.1" {
		t.Errorf("window key = %q", got)
	}

	// Splitting "a:b:c" differently must not yield the same key.
	if k.window("b:c", "a") == k.window("c", "a:b") {
		t.Error("window keys collide when colons move between endpoint and identity")
	}
	if k.window("::1", "endpoints") == k.identityEndpoints("::1") {
		t.Error("window key collides with the identity endpoint set")
	}

	custom := newKeyspace("staging")
	if got := custom.blockIndex(repository.NamespaceAccount); got != "staging:blocks:account" {
		t.Errorf("block index key = %q", got)
	}
}

func TestOverlay(t *testing.T) {
	_, client := setupTestRedis(t)

	sqlClosed := false
	repos := &repository.Repositories{
		AdmissionStore: repository.AdmissionStoreSQL,
		Cleanup:        func() { sqlClosed = true },
	}

	if err := Overlay(repos, client, "test"); err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	if repos.AdmissionStore != repository.AdmissionStoreRedis {
		t.Errorf("AdmissionStore = %q, want redis", repos.AdmissionStore)
	}
	if _, ok := repos.Blocks.(*BlockRepository); !ok {
		t.Errorf("Blocks = %T, want *BlockRepository", repos.Blocks)
	}
	if _, ok := repos.RateLimits.(*RateLimitRepository); !ok {
		t.Errorf("RateLimits = %T, want *RateLimitRepository", repos.RateLimits)
	}
	if len(repos.Health) != 1 {
		t.Fatalf("Health has %d probes, want 1", len(repos.Health))
	}

	repos.Close()
	if !sqlClosed {
		t.Error("Close should run the previous cleanup")
	}

	if err := Overlay(nil, client, ""); err != repository.ErrNilDatabase {
		t.Errorf("Overlay(nil) error = %v, want ErrNilDatabase", err)
	}
}

func TestHealthRepository(t *testing.T) {
	mr, client := setupTestRedis(t)
	repo := NewHealthRepository(client)
	ctx := context.Background()

	h, err := repo.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if h.Name != "redis" || h.Status == repository.HealthStatusUnhealthy {
		t.Errorf("unexpected health: %+v", h)
	}

	mr.Close()
	h, err = repo.CheckHealth(ctx)
	if err == nil {
		t.Fatal("CheckHealth should fail when Redis is down")
	}
	if h.Status != repository.HealthStatusUnhealthy {
		t.Errorf("Status = %q, want unhealthy", h.Status)
	}
}
