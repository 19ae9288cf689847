package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// BlockRepository implements repository.BlockRepository for PostgreSQL.
type BlockRepository struct {
	pool *Pool
}

// NewBlockRepository creates a new PostgreSQL block repository.
func NewBlockRepository(pool *Pool) *BlockRepository {
	return &BlockRepository{pool: pool}
}

const blockColumns = `id, namespace, identity, reason, blocked_at, blocked_by, expires_at, active`

func scanBlock(row pgx.Row) (*repository.BlockedIdentity, error) {
	var (
		b  repository.BlockedIdentity
		ns string
	)
	if err := row.Scan(&b.ID, &ns, &b.Identity, &b.Reason, &b.BlockedAt, &b.BlockedBy, &b.ExpiresAt, &b.Active); err != nil {
		return nil, err
	}
	b.Namespace = repository.Namespace(ns)
	b.BlockedAt = b.BlockedAt.UTC()
	if b.ExpiresAt != nil {
		t := b.ExpiresAt.UTC()
		b.ExpiresAt = &t
	}
	return &b, nil
}

// IsBlocked looks up the active, non-expired block for identity.
func (r *BlockRepository) IsBlocked(ctx context.Context, ns repository.Namespace, identity string, now time.Time) (bool, *repository.BlockedIdentity, error) {
	if err := ns.Validate(); err != nil {
		return false, nil, err
	}

	query := `SELECT ` + blockColumns + ` FROM blocked_identities
		WHERE namespace = $1 AND identity = $2 AND active
		AND (expires_at IS NULL OR expires_at > $3)`

	b, err := scanBlock(r.pool.QueryRow(ctx, query, string(ns), identity, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to check block: %w", err)
	}
	return true, b, nil
}

// Block inserts or reactivates the block for (namespace, identity).
func (r *BlockRepository) Block(ctx context.Context, req repository.BlockRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO blocked_identities (namespace, identity, reason, blocked_at, blocked_by, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (namespace, identity) DO UPDATE SET
			reason = EXCLUDED.reason,
			blocked_at = EXCLUDED.blocked_at,
			blocked_by = EXCLUDED.blocked_by,
			expires_at = EXCLUDED.expires_at,
			active = TRUE`

	_, err := execWithRetry(ctx, r.pool, query,
		string(req.Namespace), req.Identity, req.Reason, req.Now, req.BlockedBy, req.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to block identity: %w", err)
	}
	return nil
}

// Unblock deactivates the block, keeping the row for audit.
func (r *BlockRepository) Unblock(ctx context.Context, ns repository.Namespace, identity string) error {
	if err := ns.Validate(); err != nil {
		return err
	}

	tag, err := execWithRetry(ctx, r.pool,
		`UPDATE blocked_identities SET active = FALSE WHERE namespace = $1 AND identity = $2 AND active`,
		string(ns), identity)
	if err != nil {
		return fmt.Errorf("failed to unblock identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// List returns active, non-expired blocks, newest first.
func (r *BlockRepository) List(ctx context.Context, ns repository.Namespace, now time.Time) ([]repository.BlockedIdentity, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + blockColumns + ` FROM blocked_identities
		WHERE namespace = $1 AND active
		AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY blocked_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, string(ns), now)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	blocks := []repository.BlockedIdentity{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}
	return blocks, nil
}

// Purge hard-deletes the block row.
func (r *BlockRepository) Purge(ctx context.Context, ns repository.Namespace, identity string) error {
	if err := ns.Validate(); err != nil {
		return err
	}

	tag, err := execWithRetry(ctx, r.pool,
		`DELETE FROM blocked_identities WHERE namespace = $1 AND identity = $2`, string(ns), identity)
	if err != nil {
		return fmt.Errorf("failed to purge block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
