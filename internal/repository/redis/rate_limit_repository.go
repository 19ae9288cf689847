package redis

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// checkAndIncrementScript is the fixed-window read-modify-write. Redis runs
// scripts serially so concurrent callers never observe the same count.
//
//	KEYS[1] window hash  KEYS[2] window index  KEYS[3] identity endpoint set
//	ARGV    now ms, window ms, count cap, identity, endpoint
var checkAndIncrementScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local cap = tonumber(ARGV[3])
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
local start = tonumber(redis.call('HGET', KEYS[1], 'window_start'))
if count == nil or start == nil or now - start >= window then
	count = 1
	start = now
else
	count = math.min(count + 1, cap)
end
redis.call('HSET', KEYS[1],
	'count', count,
	'window_start', start,
	'last_request', now,
	'identity', ARGV[4],
	'endpoint', ARGV[5])
redis.call('ZADD', KEYS[2], start, KEYS[1])
redis.call('SADD', KEYS[3], ARGV[5])
return {count, start}
`)

// cleanupScript deletes one window if it still started before the cutoff.
//
//	KEYS[1] window hash  KEYS[2] window index  KEYS[3] identity endpoint set
//	ARGV    cutoff ms, endpoint
var cleanupScript = goredis.NewScript(`
local start = tonumber(redis.call('HGET', KEYS[1], 'window_start'))
if start ~= nil and start >= tonumber(ARGV[1]) then
	redis.call('ZADD', KEYS[2], start, KEYS[1])
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], KEYS[1])
redis.call('SREM', KEYS[3], ARGV[2])
if start == nil then
	return 0
end
return 1
`)

// RateLimitRepository implements repository.RateLimitRepository on Redis.
type RateLimitRepository struct {
	client goredis.UniversalClient
	keys   keyspace
}

// NewRateLimitRepository creates a Redis rate limit repository.
func NewRateLimitRepository(client goredis.UniversalClient, prefix string) *RateLimitRepository {
	return &RateLimitRepository{client: client, keys: newKeyspace(prefix)}
}

// CheckAndIncrement counts one request in a single script invocation.
func (r *RateLimitRepository) CheckAndIncrement(ctx context.Context, identity, endpoint string, maxRequests int, window time.Duration, now time.Time) (*repository.RateLimitResult, error) {
	if err := repository.ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if err := repository.ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if maxRequests <= 0 {
		return nil, fmt.Errorf("%w: max requests must be positive", repository.ErrInvalidInput)
	}
	if window < time.Millisecond {
		return nil, fmt.Errorf("%w: window must be at least 1ms", repository.ErrInvalidInput)
	}

	now = now.Truncate(time.Millisecond)
	keys := []string{
		r.keys.window(identity, endpoint),
		r.keys.windowIndex(),
		r.keys.identityEndpoints(identity),
	}
	vals, err := checkAndIncrementScript.Run(ctx, r.client, keys,
		toMillis(now), window.Milliseconds(), repository.MaxWindowCount, identity, endpoint,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if len(vals) != 2 {
		return nil, fmt.Errorf("unexpected rate limit script reply of length %d", len(vals))
	}

	return repository.NewRateLimitResult(int(vals[0]), maxRequests, fromMillis(vals[1]), window, now), nil
}

// GetEntry retrieves the window for an identity/endpoint combination.
func (r *RateLimitRepository) GetEntry(ctx context.Context, identity, endpoint string) (*repository.RateLimitWindow, error) {
	fields, err := r.client.HGetAll(ctx, r.keys.window(identity, endpoint)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeWindow(identity, endpoint, fields)
}

// ResetEntry deletes the window for an identity/endpoint combination.
func (r *RateLimitRepository) ResetEntry(ctx context.Context, identity, endpoint string) error {
	key := r.keys.window(identity, endpoint)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, r.keys.windowIndex(), key)
	pipe.SRem(ctx, r.keys.identityEndpoints(identity), endpoint)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset rate limit entry: %w", err)
	}
	return nil
}

// CleanupExpired removes windows that started before the cutoff.
func (r *RateLimitRepository) CleanupExpired(ctx context.Context, before time.Time) (int64, error) {
	cutoff := toMillis(before)

	// Exclusive upper bound matches window_start < before.
	stale, err := r.client.ZRangeByScore(ctx, r.keys.windowIndex(), &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan rate limit windows: %w", err)
	}

	var removed int64
	for _, key := range stale {
		owner, err := r.client.HMGet(ctx, key, "identity", "endpoint").Result()
		if err != nil {
			return removed, fmt.Errorf("failed to read rate limit window: %w", err)
		}
		identity, _ := owner[0].(string)
		endpoint, _ := owner[1].(string)

		n, err := cleanupScript.Run(ctx, r.client,
			[]string{key, r.keys.windowIndex(), r.keys.identityEndpoints(identity)},
			cutoff, endpoint,
		).Int64()
		if err != nil {
			return removed, fmt.Errorf("failed to cleanup rate limit window: %w", err)
		}
		removed += n
	}
	return removed, nil
}

// ListForIdentity retrieves all windows for an identity, newest activity first.
func (r *RateLimitRepository) ListForIdentity(ctx context.Context, identity string) ([]repository.RateLimitWindow, error) {
	endpoints, err := r.client.SMembers(ctx, r.keys.identityEndpoints(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rate limit entries: %w", err)
	}

	windows := []repository.RateLimitWindow{}
	for _, endpoint := range endpoints {
		w, err := r.GetEntry(ctx, identity, endpoint)
		if err != nil {
			return nil, err
		}
		if w != nil {
			windows = append(windows, *w)
		}
	}

	slices.SortFunc(windows, func(a, b repository.RateLimitWindow) int {
		if c := b.LastRequest.Compare(a.LastRequest); c != 0 {
			return c
		}
		return strings.Compare(a.Endpoint, b.Endpoint)
	})
	return windows, nil
}

func decodeWindow(identity, endpoint string, fields map[string]string) (*repository.RateLimitWindow, error) {
	w := &repository.RateLimitWindow{Identity: identity, Endpoint: endpoint}

	var err error
	if w.Count, err = strconv.Atoi(fields["count"]); err != nil {
		return nil, fmt.Errorf("corrupt rate limit window: bad count: %w", err)
	}
	if w.WindowStart, err = parseMillis(fields["window_start"]); err != nil {
		return nil, fmt.Errorf("corrupt rate limit window: bad window_start: %w", err)
	}
	if w.LastRequest, err = parseMillis(fields["last_request"]); err != nil {
		return nil, fmt.Errorf("corrupt rate limit window: bad last_request: %w", err)
	}
	return w, nil
}
