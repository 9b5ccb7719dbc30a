package identity

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laventecare/identitycore/internal/abac"
	"github.com/laventecare/identitycore/internal/audit"
	"github.com/laventecare/identitycore/internal/authz"
	"github.com/laventecare/identitycore/internal/federation"
	"github.com/laventecare/identitycore/internal/hashing"
	"github.com/laventecare/identitycore/internal/notify"
	"github.com/laventecare/identitycore/internal/principal"
	"github.com/laventecare/identitycore/internal/session"
	"github.com/laventecare/identitycore/internal/token"
)

type emptyPolicyStore struct{}

func (emptyPolicyStore) FindActive(_ context.Context) ([]abac.Policy, error) { return nil, nil }

type stubPermLookup struct{}

func (stubPermLookup) FindByName(_ context.Context, _ string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

type stubGrants struct{}

func (stubGrants) AssignPermissionsDirect(_ context.Context, _ uuid.UUID, _ []uuid.UUID) error {
	return nil
}

func newTestService() *Service {
	hasher := hashing.NewArgonHasher(hashing.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	principals := principal.NewRegistry(
		principal.NewMemoryPrincipalStore(),
		principal.NewMemoryUserStore(),
		principal.NewMemoryServiceCredentialStore(),
		principal.NewMemoryResetAttemptStore(),
		stubPermLookup{},
		stubGrants{},
		hasher,
		federation.NewRegistry(),
		notify.NewDevMailer(logger),
	)

	codec := token.NewJWTCodec([]byte("0123456789abcdef0123456789abcdef"))
	catalog := authz.NewMemoryCatalog()
	resolver := authz.NewMemoryDBResolver(catalog)
	sessions := session.NewManager(session.NewMemoryStore(), principals, resolver, codec, 7*24*time.Hour)
	engine := abac.NewEngine(emptyPolicyStore{}, logger)
	auditLogger := audit.NewSlogLogger(logger)

	return NewService(principals, sessions, resolver, codec, engine, auditLogger)
}

func TestRegisterAuthenticateIssueRefreshEndToEnd(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, "T", "t@x.io", "TestPassword123!")
	require.NoError(t, err)

	authed, err := svc.Authenticate(ctx, "t@x.io", "TestPassword123!")
	require.NoError(t, err)
	require.NotNil(t, authed)
	assert.Equal(t, user.ID, authed.ID)

	pair, err := svc.IssueTokenPair(ctx, authed)
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)

	validated, err := svc.ValidateAccessToken(ctx, pair.Access)
	require.NoError(t, err)
	require.NotNil(t, validated)
	assert.Equal(t, user.ID, validated.ID)

	rotated, err := svc.RefreshTokenPair(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Access, rotated.Access)
	assert.NotEqual(t, pair.Refresh, rotated.Refresh)

	_, err = svc.RefreshTokenPair(ctx, pair.Refresh)
	assert.Error(t, err, "reusing a rotated-away refresh token must fail")
}

func TestAuthenticateWrongPasswordReturnsNil(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "T", "t2@x.io", "TestPassword123!")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "t2@x.io", "wrong")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestRegisterServiceAndValidateCredentials(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	principalID, secret, _, err := svc.RegisterService(ctx, "svc-a", nil)
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	p, err := svc.ValidateServiceCredentials(ctx, principalID, secret)
	require.NoError(t, err)
	require.NotNil(t, p)

	p, err = svc.ValidateServiceCredentials(ctx, principalID, "wrong")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestEvaluateAbacWithNoPolicies(t *testing.T) {
	svc := newTestService()
	decision := svc.EvaluateAbac(context.Background(), nil, nil, nil)
	assert.Empty(t, decision.Decision)
}
