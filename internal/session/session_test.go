package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laventecare/identitycore/internal/identityerr"
	"github.com/laventecare/identitycore/internal/token"
)

type stubUsers struct {
	email   string
	enabled bool
	found   bool
}

func (s *stubUsers) FindEnabledUserByID(_ context.Context, _ uuid.UUID) (string, bool, bool, error) {
	return s.email, s.enabled, s.found, nil
}

type stubPerms struct {
	perms []string
}

func (s *stubPerms) EffectivePermissions(_ context.Context, _ uuid.UUID) ([]string, error) {
	return s.perms, nil
}

func newTestManager() (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	codec := token.NewJWTCodec([]byte("0123456789abcdef0123456789abcdef"))
	users := &stubUsers{email: "user@example.com", enabled: true, found: true}
	perms := &stubPerms{perms: []string{"read:x"}}
	return NewManager(store, users, perms, codec, 7*24*time.Hour), store
}

func TestCreateThenRefreshRotates(t *testing.T) {
	mgr, store := newTestManager()
	ctx := context.Background()
	userID := uuid.New()

	cleartext, rec, err := mgr.Create(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, cleartext)

	_, newRefresh, err := mgr.Refresh(ctx, cleartext)
	require.NoError(t, err)
	assert.NotEqual(t, cleartext, newRefresh)

	stored, err := store.FindByTokenHash(ctx, HashToken(cleartext))
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.ReplacedBy)
	assert.Equal(t, rec.FamilyID, stored.FamilyID)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	mgr, _ := newTestManager()
	_, _, err := mgr.Refresh(context.Background(), "not-a-real-token")
	assert.ErrorIs(t, err, identityerr.ErrAuthRequired)
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	mgr, store := newTestManager()
	ctx := context.Background()
	userID := uuid.New()

	cleartext, rec, err := mgr.Create(ctx, userID)
	require.NoError(t, err)

	_, _, err = mgr.Refresh(ctx, cleartext)
	require.NoError(t, err)

	// Reusing the already-rotated credential must be rejected and nuke the family.
	_, _, err = mgr.Refresh(ctx, cleartext)
	assert.ErrorIs(t, err, identityerr.ErrAuthRequired)

	siblings, err := store.FindByFamilyID(ctx, rec.FamilyID)
	require.NoError(t, err)
	for _, sib := range siblings {
		assert.NotNil(t, sib.RevokedAt, "every member of the family must be revoked after reuse detection")
	}
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()
	userID := uuid.New()

	cleartext, _, err := mgr.Create(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, mgr.Revoke(ctx, HashToken(cleartext)))

	_, _, err = mgr.Refresh(ctx, cleartext)
	assert.ErrorIs(t, err, identityerr.ErrAuthRequired)
}

func TestRefreshRejectsDisabledUser(t *testing.T) {
	store := NewMemoryStore()
	codec := token.NewJWTCodec([]byte("0123456789abcdef0123456789abcdef"))
	users := &stubUsers{email: "user@example.com", enabled: false, found: true}
	perms := &stubPerms{perms: nil}
	mgr := NewManager(store, users, perms, codec, 7*24*time.Hour)

	cleartext, _, err := mgr.Create(context.Background(), uuid.New())
	require.NoError(t, err)

	_, _, err = mgr.Refresh(context.Background(), cleartext)
	assert.ErrorIs(t, err, identityerr.ErrAuthRequired)
}

func TestRevokeAllForRevokesEveryRecord(t *testing.T) {
	mgr, store := newTestManager()
	ctx := context.Background()
	userID := uuid.New()

	_, rec1, err := mgr.Create(ctx, userID)
	require.NoError(t, err)
	_, rec2, err := mgr.Create(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, mgr.RevokeAllFor(ctx, userID))

	for _, rec := range []*Record{rec1, rec2} {
		recs, err := store.FindByFamilyID(ctx, rec.FamilyID)
		require.NoError(t, err)
		require.NotEmpty(t, recs)
		for _, r := range recs {
			if r.ID == rec.ID {
				assert.NotNil(t, r.RevokedAt)
			}
		}
	}
}

func TestRotateTxSecondCallObservesFirstsRotation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	rec := &Record{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: "presented-hash",
		FamilyID:  uuid.New(),
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Save(ctx, rec))

	firstNew := &Record{ID: uuid.New(), UserID: userID, TokenHash: "first-winner", FamilyID: rec.FamilyID, ExpiresAt: time.Now().Add(time.Hour)}
	before, err := store.RotateTx(ctx, rec.TokenHash, firstNew)
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.True(t, before.Consumable(time.Now()), "first caller must observe the still-unrotated record")

	// A second concurrent caller presenting the same (now-rotated) hash must
	// observe the mutation the first RotateTx call made, not clobber it.
	secondNew := &Record{ID: uuid.New(), UserID: userID, TokenHash: "second-loser", FamilyID: rec.FamilyID, ExpiresAt: time.Now().Add(time.Hour)}
	raced, err := store.RotateTx(ctx, rec.TokenHash, secondNew)
	require.NoError(t, err)
	require.NotNil(t, raced)
	assert.False(t, raced.Consumable(time.Now()), "second caller must see the record as already rotated")
	require.NotNil(t, raced.ReplacedBy)
	assert.Equal(t, firstNew.ID, *raced.ReplacedBy)

	_, err = store.FindByTokenHash(ctx, "second-loser")
	require.NoError(t, err)
}

type rotateSpyStore struct {
	*MemoryStore
	rotateCalls int
}

func (s *rotateSpyStore) RotateTx(ctx context.Context, oldHash string, newRec *Record) (*Record, error) {
	s.rotateCalls++
	return s.MemoryStore.RotateTx(ctx, oldHash, newRec)
}

func TestManagerRefreshUsesRotatorWhenAvailable(t *testing.T) {
	store := &rotateSpyStore{MemoryStore: NewMemoryStore()}
	codec := token.NewJWTCodec([]byte("0123456789abcdef0123456789abcdef"))
	users := &stubUsers{email: "user@example.com", enabled: true, found: true}
	mgr := NewManager(store, users, &stubPerms{perms: []string{"read:x"}}, codec, 7*24*time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	cleartext, _, err := mgr.Create(ctx, userID)
	require.NoError(t, err)

	_, _, err = mgr.Refresh(ctx, cleartext)
	require.NoError(t, err)

	stored, err := store.FindByTokenHash(ctx, HashToken(cleartext))
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.ReplacedBy)
	assert.Equal(t, 1, store.rotateCalls, "Manager.Refresh must route through Store.RotateTx when the Store implements Rotator")
}

func TestRecordConsumable(t *testing.T) {
	now := time.Now()
	r := &Record{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, r.Consumable(now))

	expired := &Record{ExpiresAt: now.Add(-time.Second)}
	assert.False(t, expired.Consumable(now))

	revokedAt := now
	revoked := &Record{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}
	assert.False(t, revoked.Consumable(now))
}
