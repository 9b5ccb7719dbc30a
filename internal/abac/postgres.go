package abac

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPolicyStore implements PolicyStore against an `abac_policies`
// table. Condition is stored as a `jsonb` column and scanned back as raw
// bytes — parsing/hardening stays entirely inside Engine.policyMatches,
// never here.
type PostgresPolicyStore struct {
	pool *pgxpool.Pool
}

// NewPostgresPolicyStore wraps an existing connection pool.
func NewPostgresPolicyStore(pool *pgxpool.Pool) *PostgresPolicyStore {
	return &PostgresPolicyStore{pool: pool}
}

func (s *PostgresPolicyStore) FindActive(ctx context.Context) ([]Policy, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, effect, condition, is_active
		FROM abac_policies WHERE is_active = true
	`)
	if err != nil {
		return nil, fmt.Errorf("abac: find active policies: %w", err)
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Effect, &p.Condition, &p.IsActive); err != nil {
			return nil, fmt.Errorf("abac: scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
