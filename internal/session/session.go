// Package session implements the Refresh Token Store (C3): rotation,
// reuse detection, and family-wide revocation of refresh credentials.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/laventecare/identitycore/internal/identityerr"
	"github.com/laventecare/identitycore/internal/token"
)

// Record is a single refresh-token entry. The cleartext token is never
// stored — only its SHA-256 hash.
type Record struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	FamilyID   uuid.UUID
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID
}

// Consumable reports whether r can still be presented for a refresh: not
// revoked, not already rotated away, and not expired as of now.
func (r *Record) Consumable(now time.Time) bool {
	return r.RevokedAt == nil && r.ReplacedBy == nil && now.Before(r.ExpiresAt)
}

// Store is the persistence port C3 is built on.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	FindByTokenHash(ctx context.Context, hash string) (*Record, error)
	FindByUserIDAndNotRevoked(ctx context.Context, userID uuid.UUID) ([]*Record, error)
	FindByFamilyID(ctx context.Context, familyID uuid.UUID) ([]*Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserLookup is the narrow collaborator Manager needs from the Principal
// Registry — just enough to reject disabled or missing users on refresh,
// without importing the whole registry and risking an import cycle.
type UserLookup interface {
	FindEnabledUserByID(ctx context.Context, id uuid.UUID) (email string, enabled bool, found bool, err error)
}

// PermissionsResolver is the narrow collaborator Manager needs from the
// Authorization Resolver to mint a fresh access token on refresh.
type PermissionsResolver interface {
	EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Rotator is an optional Store capability for backends (PostgresStore,
// MemoryStore) that can perform the lookup -> reuse-check -> revoke-old ->
// insert-new sequence as a single atomic operation, per §5's requirement
// that a rotation race resolve with exactly one winner and the other
// treated as reuse. RotateTx re-validates the presented hash's Consumable
// state at mutation time rather than trusting Manager's earlier read, so a
// second concurrent caller racing the same hash observes the first
// caller's rotation instead of clobbering it. Manager uses this path when
// the configured Store implements it, and falls back to two sequential
// Store.Save calls otherwise.
type Rotator interface {
	RotateTx(ctx context.Context, oldHash string, newRec *Record) (old *Record, err error)
}

// HashToken returns the lookup key C3 stores and searches by. Exported so
// callers (e.g. logout-by-presented-token flows) can compute it without
// duplicating the hash choice.
func HashToken(cleartext string) string {
	sum := sha256.Sum256([]byte(cleartext))
	return hex.EncodeToString(sum[:])
}

// Manager implements the §4.3 operations over a Store.
type Manager struct {
	store      Store
	users      UserLookup
	perms      PermissionsResolver
	codec      token.Codec
	refreshTTL time.Duration
}

// NewManager builds a Manager. refreshTTL governs the lifetime of newly
// created and rotated records; it is independent of the TTL the token
// codec itself embeds in the signed refresh JWT.
func NewManager(store Store, users UserLookup, perms PermissionsResolver, codec token.Codec, refreshTTL time.Duration) *Manager {
	return &Manager{store: store, users: users, perms: perms, codec: codec, refreshTTL: refreshTTL}
}

// Create allocates a new family and issues the first refresh credential for
// userID. The cleartext is returned exactly once; only its hash persists.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID) (cleartext string, rec *Record, err error) {
	cleartext, err = m.codec.IssueRefresh(userID)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	rec = &Record{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(cleartext),
		FamilyID:  uuid.New(),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.refreshTTL),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return "", nil, err
	}
	return cleartext, rec, nil
}

// Refresh rotates a presented refresh credential: it validates the
// presented token, detects reuse of an already-rotated credential (nuking
// the whole family when that happens), and on success returns a fresh
// access/refresh pair.
func (m *Manager) Refresh(ctx context.Context, presented string) (newAccess, newRefresh string, err error) {
	hash := HashToken(presented)

	rec, err := m.store.FindByTokenHash(ctx, hash)
	if err != nil {
		return "", "", err
	}
	if rec == nil {
		return "", "", identityerr.AuthRequired("refresh token not recognized")
	}

	if rec.ReplacedBy != nil {
		if revokeErr := m.RevokeFamily(ctx, rec.FamilyID); revokeErr != nil {
			return "", "", revokeErr
		}
		return "", "", identityerr.AuthRequired("refresh token reuse detected")
	}

	now := time.Now()
	if rec.RevokedAt != nil || !now.Before(rec.ExpiresAt) {
		return "", "", identityerr.AuthRequired("refresh token is no longer valid")
	}

	email, enabled, found, err := m.users.FindEnabledUserByID(ctx, rec.UserID)
	if err != nil {
		return "", "", err
	}
	if !found || !enabled {
		return "", "", identityerr.AuthRequired("principal is not eligible to refresh")
	}

	permissions, err := m.perms.EffectivePermissions(ctx, rec.UserID)
	if err != nil {
		permissions = []string{}
	}

	newRefresh, err = m.codec.IssueRefresh(rec.UserID)
	if err != nil {
		return "", "", err
	}

	newRec := &Record{
		ID:        uuid.New(),
		UserID:    rec.UserID,
		TokenHash: HashToken(newRefresh),
		FamilyID:  rec.FamilyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.refreshTTL),
	}

	if rotator, ok := m.store.(Rotator); ok {
		locked, rotateErr := rotator.RotateTx(ctx, hash, newRec)
		if rotateErr != nil {
			return "", "", rotateErr
		}
		if locked == nil {
			return "", "", identityerr.AuthRequired("refresh token not recognized")
		}
		if !locked.Consumable(now) {
			if revokeErr := m.RevokeFamily(ctx, locked.FamilyID); revokeErr != nil {
				return "", "", revokeErr
			}
			return "", "", identityerr.AuthRequired("refresh token reuse detected")
		}
	} else {
		if err := m.store.Save(ctx, newRec); err != nil {
			return "", "", err
		}
		rec.ReplacedBy = &newRec.ID
		if err := m.store.Save(ctx, rec); err != nil {
			return "", "", err
		}
	}

	newAccess, err = m.codec.IssueAccess(rec.UserID, email, permissions)
	if err != nil {
		return "", "", err
	}

	return newAccess, newRefresh, nil
}

// Revoke marks the record identified by tokenHash as revoked. Idempotent:
// revoking an already-revoked or unknown hash is not an error.
func (m *Manager) Revoke(ctx context.Context, tokenHash string) error {
	rec, err := m.store.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return err
	}
	if rec == nil || rec.RevokedAt != nil {
		return nil
	}
	now := time.Now()
	rec.RevokedAt = &now
	return m.store.Save(ctx, rec)
}

// RevokeAllFor revokes every non-revoked record belonging to userID.
func (m *Manager) RevokeAllFor(ctx context.Context, userID uuid.UUID) error {
	recs, err := m.store.FindByUserIDAndNotRevoked(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, rec := range recs {
		rec.RevokedAt = &now
		if err := m.store.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// RevokeFamily revokes every member of familyID — the reuse-detection
// nuclear option.
func (m *Manager) RevokeFamily(ctx context.Context, familyID uuid.UUID) error {
	recs, err := m.store.FindByFamilyID(ctx, familyID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, rec := range recs {
		if rec.RevokedAt == nil {
			rec.RevokedAt = &now
			if err := m.store.Save(ctx, rec); err != nil {
				return err
			}
		}
	}
	return nil
}
