package principal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func noRowsToNil(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

// PostgresPrincipalStore implements PrincipalStore against a `principals`
// table with a unique (kind, external_id) constraint.
type PostgresPrincipalStore struct {
	pool *pgxpool.Pool
}

func NewPostgresPrincipalStore(pool *pgxpool.Pool) *PostgresPrincipalStore {
	return &PostgresPrincipalStore{pool: pool}
}

func (s *PostgresPrincipalStore) FindByKindAndExternalID(ctx context.Context, kind Kind, externalID string) (*Principal, error) {
	var p Principal
	err := s.pool.QueryRow(ctx, `
		SELECT id, kind, external_id, enabled, created_at, updated_at, version
		FROM principals WHERE kind = $1 AND external_id = $2
	`, kind, externalID).Scan(&p.ID, &p.Kind, &p.ExternalID, &p.Enabled, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		if err = noRowsToNil(err); err == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("principal: find principal: %w", err)
	}
	return &p, nil
}

func (s *PostgresPrincipalStore) Save(ctx context.Context, p *Principal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO principals (id, kind, external_id, enabled, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.Kind, p.ExternalID, p.Enabled, p.CreatedAt, p.UpdatedAt, p.Version)
	if err != nil {
		return fmt.Errorf("principal: save principal: %w", err)
	}
	return nil
}

func (s *PostgresPrincipalStore) Update(ctx context.Context, p *Principal) error {
	p.UpdatedAt = time.Now()
	p.Version++
	_, err := s.pool.Exec(ctx, `
		UPDATE principals SET enabled = $1, updated_at = $2, version = $3 WHERE id = $4
	`, p.Enabled, p.UpdatedAt, p.Version, p.ID)
	if err != nil {
		return fmt.Errorf("principal: update principal: %w", err)
	}
	return nil
}

// PostgresUserStore implements UserStore against a `users` table, keyed on
// principal id and a unique (lowercased) email column.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStore(pool *pgxpool.Pool) *PostgresUserStore {
	return &PostgresUserStore{pool: pool}
}

const userColumns = `id, email, display_name, password_hash, remember_me_token,
	password_reset_token, password_reset_expires_at, password_reset_used_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.RememberMeToken,
		&u.PasswordResetToken, &u.PasswordResetExpiresAt, &u.PasswordResetUsedAt)
	if err != nil {
		if err = noRowsToNil(err); err == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("principal: scan user: %w", err)
	}
	return &u, nil
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *PostgresUserStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PostgresUserStore) FindByRememberMeToken(ctx context.Context, token string) (*User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE remember_me_token = $1`, token)
	return scanUser(row)
}

func (s *PostgresUserStore) FindByResetToken(ctx context.Context, token string) (*User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE password_reset_token = $1`, token)
	return scanUser(row)
}

func (s *PostgresUserStore) Save(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, remember_me_token,
			password_reset_token, password_reset_expires_at, password_reset_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.DisplayName, u.PasswordHash, u.RememberMeToken,
		u.PasswordResetToken, u.PasswordResetExpiresAt, u.PasswordResetUsedAt)
	if err != nil {
		return fmt.Errorf("principal: save user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) Update(ctx context.Context, u *User) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET
			display_name = $1, password_hash = $2, remember_me_token = $3,
			password_reset_token = $4, password_reset_expires_at = $5, password_reset_used_at = $6
		WHERE id = $7
	`, u.DisplayName, u.PasswordHash, u.RememberMeToken,
		u.PasswordResetToken, u.PasswordResetExpiresAt, u.PasswordResetUsedAt, u.ID)
	if err != nil {
		return fmt.Errorf("principal: update user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) DeleteAll(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM users`)
	if err != nil {
		return fmt.Errorf("principal: delete all users: %w", err)
	}
	return nil
}

// PostgresServiceCredentialStore implements ServiceCredentialStore.
type PostgresServiceCredentialStore struct {
	pool *pgxpool.Pool
}

func NewPostgresServiceCredentialStore(pool *pgxpool.Pool) *PostgresServiceCredentialStore {
	return &PostgresServiceCredentialStore{pool: pool}
}

func (s *PostgresServiceCredentialStore) FindByPrincipalID(ctx context.Context, principalID uuid.UUID) (*ServiceCredential, error) {
	var c ServiceCredential
	err := s.pool.QueryRow(ctx, `
		SELECT principal_id, client_secret_hash, created_at, updated_at
		FROM service_credentials WHERE principal_id = $1
	`, principalID).Scan(&c.PrincipalID, &c.ClientSecretHash, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err = noRowsToNil(err); err == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("principal: find service credential: %w", err)
	}
	return &c, nil
}

func (s *PostgresServiceCredentialStore) Save(ctx context.Context, c *ServiceCredential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service_credentials (principal_id, client_secret_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal_id) DO UPDATE SET
			client_secret_hash = EXCLUDED.client_secret_hash,
			updated_at         = EXCLUDED.updated_at
	`, c.PrincipalID, c.ClientSecretHash, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("principal: save service credential: %w", err)
	}
	return nil
}

// PostgresResetAttemptStore implements PasswordResetAttemptStore against an
// append-only `password_reset_attempts` table.
type PostgresResetAttemptStore struct {
	pool *pgxpool.Pool
}

func NewPostgresResetAttemptStore(pool *pgxpool.Pool) *PostgresResetAttemptStore {
	return &PostgresResetAttemptStore{pool: pool}
}

func (s *PostgresResetAttemptStore) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM password_reset_attempts WHERE email = $1 AND attempted_at >= $2
	`, email, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("principal: count reset attempts: %w", err)
	}
	return count, nil
}

func (s *PostgresResetAttemptStore) Record(ctx context.Context, attempt ResetAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_reset_attempts (email, attempted_at) VALUES ($1, $2)
	`, attempt.Email, attempt.AttemptedAt)
	if err != nil {
		return fmt.Errorf("principal: record reset attempt: %w", err)
	}
	return nil
}
