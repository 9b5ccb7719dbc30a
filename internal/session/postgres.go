package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store against a `refresh_tokens` table with a
// unique index on token_hash. Concurrent rotations of the same presented
// credential are serialized by RotateTx's `SELECT ... FOR UPDATE` row lock:
// the second caller sees the row the first caller already rotated.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			revoked_at  = EXCLUDED.revoked_at,
			replaced_by = EXCLUDED.replaced_by
	`, rec.ID, rec.UserID, rec.TokenHash, rec.FamilyID, rec.IssuedAt, rec.ExpiresAt, rec.RevokedAt, rec.ReplacedBy)
	if err != nil {
		return fmt.Errorf("session: save record: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.FamilyID, &rec.IssuedAt, &rec.ExpiresAt, &rec.RevokedAt, &rec.ReplacedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: scan record: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) FindByTokenHash(ctx context.Context, hash string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by
		FROM refresh_tokens WHERE token_hash = $1
	`, hash)
	return scanRecord(row)
}

func (s *PostgresStore) FindByUserIDAndNotRevoked(ctx context.Context, userID uuid.UUID) ([]*Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by
		FROM refresh_tokens WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("session: find by user: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *PostgresStore) FindByFamilyID(ctx context.Context, familyID uuid.UUID) ([]*Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by
		FROM refresh_tokens WHERE family_id = $1
	`, familyID)
	if err != nil {
		return nil, fmt.Errorf("session: find by family: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.FamilyID, &rec.IssuedAt, &rec.ExpiresAt, &rec.RevokedAt, &rec.ReplacedBy); err != nil {
			return nil, fmt.Errorf("session: scan row: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("session: delete record: %w", err)
	}
	return nil
}

// RotateTx performs the look-up -> reuse-check -> revoke-old -> insert-new
// sequence inside a single transaction, giving §5's atomicity requirement
// teeth against concurrent refreshes of the same presented credential. The
// in-process Manager.Refresh already enforces the same sequence through the
// Store port; RotateTx is the stronger guarantee used when the store is
// backed by Postgres and concurrent callers may race on the same hash.
func (s *PostgresStore) RotateTx(ctx context.Context, oldHash string, newRec *Record) (old *Record, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT id, user_id, token_hash, family_id, issued_at, expires_at, revoked_at, replaced_by
		FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE
	`, oldHash)
	old, err = scanRecord(row)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, nil
	}

	now := time.Now()
	if !old.Consumable(now) {
		// Already rotated, revoked, or expired by a concurrent caller (or
		// a prior request) since Manager's initial read: return the
		// locked row as-is without mutating it, so the caller can tell
		// reuse/expiry apart and the transaction has nothing to roll back.
		return old, nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, newRec.ID, newRec.UserID, newRec.TokenHash, newRec.FamilyID, now, newRec.ExpiresAt); err != nil {
		return nil, fmt.Errorf("session: insert rotated record: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET replaced_by = $1 WHERE id = $2
	`, newRec.ID, old.ID); err != nil {
		return nil, fmt.Errorf("session: mark replaced: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("session: commit rotation: %w", err)
	}
	return old, nil
}
