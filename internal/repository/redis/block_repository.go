package redis

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// Each block is a hash; a per-namespace sorted set scored by blocked_at
// indexes the active ones.
//
//	KEYS[1] block hash  KEYS[2] namespace index  KEYS[3] id sequence
//	ARGV    namespace, identity, reason, blocked_at ms, blocked_by, expires_at ms or ""
var blockScript = goredis.NewScript(`
local id = redis.call('HGET', KEYS[1], 'id')
if not id then
	id = redis.call('INCR', KEYS[3])
end
redis.call('HSET', KEYS[1],
	'id', id,
	'namespace', ARGV[1],
	'identity', ARGV[2],
	'reason', ARGV[3],
	'blocked_at', ARGV[4],
	'blocked_by', ARGV[5],
	'expires_at', ARGV[6],
	'active', '1')
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[2])
return id
`)

// unblockScript deactivates an active block.
//
//	KEYS[1] block hash  KEYS[2] namespace index  ARGV[1] identity
var unblockScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'active') ~= '1' then
	return 0
end
redis.call('HSET', KEYS[1], 'active', '0')
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

// BlockRepository implements repository.BlockRepository on Redis.
type BlockRepository struct {
	client goredis.UniversalClient
	keys   keyspace
}

// NewBlockRepository creates a Redis block repository.
func NewBlockRepository(client goredis.UniversalClient, prefix string) *BlockRepository {
	return &BlockRepository{client: client, keys: newKeyspace(prefix)}
}

// IsBlocked reads the block hash and applies expiry at read time.
func (r *BlockRepository) IsBlocked(ctx context.Context, ns repository.Namespace, identity string, now time.Time) (bool, *repository.BlockedIdentity, error) {
	if err := ns.Validate(); err != nil {
		return false, nil, err
	}

	fields, err := r.client.HGetAll(ctx, r.keys.block(ns, identity)).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to check block: %w", err)
	}
	if len(fields) == 0 {
		return false, nil, nil
	}

	b, err := decodeBlock(fields)
	if err != nil {
		return false, nil, err
	}
	if !b.IsEffective(now) {
		return false, nil, nil
	}
	return true, b, nil
}

// Block inserts or reactivates the block for (namespace, identity).
func (r *BlockRepository) Block(ctx context.Context, req repository.BlockRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	expires := ""
	if req.ExpiresAt != nil {
		expires = strconv.FormatInt(toMillis(*req.ExpiresAt), 10)
	}

	keys := []string{
		r.keys.block(req.Namespace, req.Identity),
		r.keys.blockIndex(req.Namespace),
		r.keys.blockSeq(),
	}
	err := blockScript.Run(ctx, r.client, keys,
		string(req.Namespace), req.Identity, req.Reason, toMillis(req.Now), req.BlockedBy, expires,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to block identity: %w", err)
	}
	return nil
}

// Unblock deactivates the block, keeping the hash for audit.
func (r *BlockRepository) Unblock(ctx context.Context, ns repository.Namespace, identity string) error {
	if err := ns.Validate(); err != nil {
		return err
	}

	changed, err := unblockScript.Run(ctx, r.client,
		[]string{r.keys.block(ns, identity), r.keys.blockIndex(ns)}, identity,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to unblock identity: %w", err)
	}
	if changed == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns active, non-expired blocks, newest first.
func (r *BlockRepository) List(ctx context.Context, ns repository.Namespace, now time.Time) ([]repository.BlockedIdentity, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}

	identities, err := r.client.ZRevRange(ctx, r.keys.blockIndex(ns), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}

	pipe := r.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(identities))
	for i, identity := range identities {
		cmds[i] = pipe.HGetAll(ctx, r.keys.block(ns, identity))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to load blocks: %w", err)
		}
	}

	blocks := []repository.BlockedIdentity{}
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		b, err := decodeBlock(fields)
		if err != nil {
			return nil, err
		}
		if b.IsEffective(now) {
			blocks = append(blocks, *b)
		}
	}

	slices.SortFunc(blocks, func(a, b repository.BlockedIdentity) int {
		if c := b.BlockedAt.Compare(a.BlockedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return blocks, nil
}

// Purge hard-deletes the block.
func (r *BlockRepository) Purge(ctx context.Context, ns repository.Namespace, identity string) error {
	if err := ns.Validate(); err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.keys.block(ns, identity))
	pipe.ZRem(ctx, r.keys.blockIndex(ns), identity)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to purge block: %w", err)
	}
	if del.Val() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func decodeBlock(fields map[string]string) (*repository.BlockedIdentity, error) {
	b := &repository.BlockedIdentity{
		Namespace: repository.Namespace(fields["namespace"]),
		Identity:  fields["identity"],
		Reason:    fields["reason"],
		BlockedBy: fields["blocked_by"],
		Active:    fields["active"] == "1",
	}

	var err error
	if b.ID, err = strconv.ParseInt(fields["id"], 10, 64); err != nil {
		return nil, fmt.Errorf("corrupt block record %q: bad id: %w", b.Identity, err)
	}
	if b.BlockedAt, err = parseMillis(fields["blocked_at"]); err != nil {
		return nil, fmt.Errorf("corrupt block record %q: bad blocked_at: %w", b.Identity, err)
	}
	if v := fields["expires_at"]; v != "" {
		t, err := parseMillis(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt block record %q: bad expires_at: %w", b.Identity, err)
		}
		b.ExpiresAt = &t
	}
	return b, nil
}
