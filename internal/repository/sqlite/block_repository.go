package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjmerc/velvetrope/internal/repository"
)

// BlockRepository implements repository.BlockRepository for SQLite.
type BlockRepository struct {
	db *sql.DB
}

// NewBlockRepository creates a new SQLite block repository.
func NewBlockRepository(db *sql.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

const blockColumns = `id, namespace, identity, reason, blocked_at, blocked_by, expires_at, active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*repository.BlockedIdentity, error) {
	var (
		b         repository.BlockedIdentity
		ns        string
		blockedAt int64
		expiresAt sql.NullInt64
		active    int
	)
	if err := row.Scan(&b.ID, &ns, &b.Identity, &b.Reason, &blockedAt, &b.BlockedBy, &expiresAt, &active); err != nil {
		return nil, err
	}
	b.Namespace = repository.Namespace(ns)
	b.BlockedAt = fromMillis(blockedAt)
	b.ExpiresAt = timePtrFromNull(expiresAt)
	b.Active = active == 1
	return &b, nil
}

// IsBlocked looks up the active, non-expired block for identity.
func (r *BlockRepository) IsBlocked(ctx context.Context, ns repository.Namespace, identity string, now time.Time) (bool, *repository.BlockedIdentity, error) {
	if err := ns.Validate(); err != nil {
		return false, nil, err
	}

	query := `SELECT ` + blockColumns + ` FROM blocked_identities
		WHERE namespace = ? AND identity = ? AND active = 1
		AND (expires_at IS NULL OR expires_at > ?)`

	b, err := scanBlock(r.db.QueryRowContext(ctx, query, string(ns), identity, toMillis(now)))
	if errors.Is(err, sql.ErrNoRows) {
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
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(namespace, identity) DO UPDATE SET
			reason = excluded.reason,
			blocked_at = excluded.blocked_at,
			blocked_by = excluded.blocked_by,
			expires_at = excluded.expires_at,
			active = 1`

	_, err := execWithRetry(ctx, r.db, query,
		string(req.Namespace), req.Identity, req.Reason, toMillis(req.Now), req.BlockedBy, nullMillis(req.ExpiresAt))
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

	result, err := execWithRetry(ctx, r.db,
		`UPDATE blocked_identities SET active = 0 WHERE namespace = ? AND identity = ? AND active = 1`,
		string(ns), identity)
	if err != nil {
		return fmt.Errorf("failed to unblock identity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
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
		WHERE namespace = ? AND active = 1
		AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY blocked_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, string(ns), toMillis(now))
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

	result, err := execWithRetry(ctx, r.db,
		`DELETE FROM blocked_identities WHERE namespace = ? AND identity = ?`, string(ns), identity)
	if err != nil {
		return fmt.Errorf("failed to purge block: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
