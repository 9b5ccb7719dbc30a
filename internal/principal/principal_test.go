package principal

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laventecare/identitycore/internal/federation"
	"github.com/laventecare/identitycore/internal/hashing"
	"github.com/laventecare/identitycore/internal/notify"

	"github.com/google/uuid"
)

func testHasher() hashing.Hasher {
	return hashing.NewArgonHasher(hashing.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
}

type stubPermissionLookup struct {
	known map[string]uuid.UUID
}

func (s *stubPermissionLookup) FindByName(_ context.Context, name string) (uuid.UUID, bool, error) {
	id, ok := s.known[name]
	return id, ok, nil
}

type stubGrantWriter struct {
	granted map[uuid.UUID][]uuid.UUID
}

func (s *stubGrantWriter) AssignPermissionsDirect(_ context.Context, principalID uuid.UUID, permissionIDs []uuid.UUID) error {
	if s.granted == nil {
		s.granted = make(map[uuid.UUID][]uuid.UUID)
	}
	s.granted[principalID] = permissionIDs
	return nil
}

func newTestRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	return NewRegistry(
		NewMemoryPrincipalStore(),
		NewMemoryUserStore(),
		NewMemoryServiceCredentialStore(),
		NewMemoryResetAttemptStore(),
		&stubPermissionLookup{known: map[string]uuid.UUID{"read:x": uuid.New()}},
		&stubGrantWriter{},
		testHasher(),
		federation.NewRegistry(),
		notify.NewDevMailer(logger),
	)
}

func TestRegisterThenAuthenticateRoundTrip(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	user, err := reg.Register(ctx, "T", "t@x.io", "TestPassword123!")
	require.NoError(t, err)

	got, err := reg.Authenticate(ctx, "t@x.io", "TestPassword123!")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)

	wrong, err := reg.Authenticate(ctx, "t@x.io", "wrong")
	require.NoError(t, err)
	assert.Nil(t, wrong)

	blank, err := reg.Authenticate(ctx, "t@x.io", "")
	require.NoError(t, err)
	assert.Nil(t, blank)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Register(ctx, "T", "dup@x.io", "TestPassword123!")
	require.NoError(t, err)

	_, err = reg.Register(ctx, "T2", "DUP@x.io", "TestPassword123!")
	assert.Error(t, err)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.Register(context.Background(), "T", "weak@x.io", "weak")
	assert.Error(t, err)
}

func TestRegisterServiceUniqueness(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	_, _, secret, _, err := reg.RegisterService(ctx, "svc", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)

	_, _, _, _, err = reg.RegisterService(ctx, "svc", nil)
	assert.Error(t, err)

	_, _, _, _, err = reg.RegisterService(ctx, "svc2", []string{"nonexistent:permission"})
	assert.Error(t, err)
}

func TestValidateServiceCredentials(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	principalID, _, secret, _, err := reg.RegisterService(ctx, "svc-a", []string{"read:x"})
	require.NoError(t, err)

	p, err := reg.ValidateServiceCredentials(ctx, principalID, secret)
	require.NoError(t, err)
	require.NotNil(t, p)

	p, err = reg.ValidateServiceCredentials(ctx, principalID, "wrong-secret")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPasswordResetFlow(t *testing.T) {
	reg := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Register(ctx, "T", "reset@x.io", "TestPassword123!")
	require.NoError(t, err)

	ok, err := reg.RequestPasswordReset(ctx, "reset@x.io", "en")
	require.NoError(t, err)
	assert.True(t, ok)

	user, err := reg.users.FindByEmail(ctx, "reset@x.io")
	require.NoError(t, err)
	require.NotNil(t, user.PasswordResetToken)
	token := *user.PasswordResetToken

	updated, err := reg.ResetPassword(ctx, token, "NewPassword456!")
	require.NoError(t, err)
	require.NotNil(t, updated.PasswordResetUsedAt)

	_, err = reg.ResetPassword(ctx, token, "AnotherPassword789!")
	assert.Error(t, err, "a used reset token must not be reusable")

	got, err := reg.Authenticate(ctx, "reset@x.io", "NewPassword456!")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestRequestPasswordResetAlwaysReportsSuccess(t *testing.T) {
	reg := newTestRegistry()
	ok, err := reg.RequestPasswordReset(context.Background(), "nosuchuser@x.io", "en")
	require.NoError(t, err)
	assert.True(t, ok)
}
