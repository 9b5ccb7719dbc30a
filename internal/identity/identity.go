// Package identity is the Authentication façade: the integration layer
// orchestrating C1-C7 behind the external interface §6 names.
package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/laventecare/identitycore/internal/abac"
	"github.com/laventecare/identitycore/internal/audit"
	"github.com/laventecare/identitycore/internal/authz"
	"github.com/laventecare/identitycore/internal/principal"
	"github.com/laventecare/identitycore/internal/session"
	"github.com/laventecare/identitycore/internal/token"
)

// TokenPair is the credential pair handed back by issue/refresh operations.
type TokenPair struct {
	Access  string
	Refresh string
}

// Service composes C1-C7 behind the operations an external transport layer
// calls. It holds no transport concerns of its own.
type Service struct {
	principals *principal.Registry
	sessions   *session.Manager
	authz      authz.Resolver
	codec      token.Codec
	abac       *abac.Engine
	audit      audit.Logger
}

// NewService wires a Service from its composed components.
func NewService(
	principals *principal.Registry,
	sessions *session.Manager,
	resolver authz.Resolver,
	codec token.Codec,
	engine *abac.Engine,
	auditLogger audit.Logger,
) *Service {
	return &Service{
		principals: principals,
		sessions:   sessions,
		authz:      resolver,
		codec:      codec,
		abac:       engine,
		audit:      auditLogger,
	}
}

// Register creates a new user.
func (s *Service) Register(ctx context.Context, name, email, password string) (*principal.User, error) {
	return s.principals.Register(ctx, name, email, password)
}

// Authenticate verifies email/password and returns the user, or nil on
// any failure (wrong password, disabled, no such user — indistinguishable).
func (s *Service) Authenticate(ctx context.Context, email, password string) (*principal.User, error) {
	user, err := s.principals.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		s.audit.Log(ctx, audit.Entry{Action: audit.EventLoginFailed, Metadata: map[string]string{"email": email}})
		return nil, nil
	}
	s.audit.Log(ctx, audit.Entry{ActorID: user.ID, TargetID: user.ID, Action: audit.EventLoginSuccess})
	return user, nil
}

// AuthenticateWithOAuth dispatches to the federated identity adapter.
func (s *Service) AuthenticateWithOAuth(ctx context.Context, provider, assertion string) (*principal.User, error) {
	return s.principals.AuthenticateWithOAuth(ctx, provider, assertion)
}

// IssueTokenPair mints a fresh access/refresh pair for an already-
// authenticated user, using the current effective permissions.
func (s *Service) IssueTokenPair(ctx context.Context, user *principal.User) (*TokenPair, error) {
	permissions, err := s.authz.EffectivePermissions(ctx, user.ID)
	if err != nil {
		permissions = []string{}
	}

	access, err := s.codec.IssueAccess(user.ID, user.Email, permissions)
	if err != nil {
		return nil, err
	}

	refresh, _, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// RefreshTokenPair rotates a presented refresh credential.
func (s *Service) RefreshTokenPair(ctx context.Context, refreshCleartext string) (*TokenPair, error) {
	access, refresh, err := s.sessions.Refresh(ctx, refreshCleartext)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// ValidateAccessToken verifies an access token and loads the user, enforcing
// the enabled check.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (*principal.User, error) {
	claims, err := s.codec.Verify(accessToken)
	if err != nil || claims.Type != token.TypeAccess {
		return nil, nil
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil
	}
	user, err := s.principals.FindEnabledUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RequestPasswordReset always reports true externally.
func (s *Service) RequestPasswordReset(ctx context.Context, email, locale string) (bool, error) {
	return s.principals.RequestPasswordReset(ctx, email, locale)
}

// ResetPassword validates the token and applies the new password.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) (*principal.User, error) {
	return s.principals.ResetPassword(ctx, resetToken, newPassword)
}

// RegisterService creates a service principal; the cleartext client secret
// is returned exactly once, here, and only its hash is stored.
func (s *Service) RegisterService(ctx context.Context, serviceID string, permissionNames []string) (principalID uuid.UUID, clientSecret string, permissions []string, err error) {
	id, _, secret, perms, err := s.principals.RegisterService(ctx, serviceID, permissionNames)
	if err != nil {
		return uuid.Nil, "", nil, err
	}
	s.audit.Log(ctx, audit.Entry{TargetID: id, Action: audit.EventServiceRegistered, Metadata: map[string]string{"service_id": serviceID}})
	return id, secret, perms, nil
}

// ValidateServiceCredentials verifies a service's client secret.
func (s *Service) ValidateServiceCredentials(ctx context.Context, serviceID uuid.UUID, cleartext string) (*principal.Principal, error) {
	return s.principals.ValidateServiceCredentials(ctx, serviceID, cleartext)
}

// EvaluateAbac runs the ABAC engine over the given attribute triple.
func (s *Service) EvaluateAbac(ctx context.Context, subjectAttrs, resourceAttrs, contextAttrs map[string]interface{}) abac.Decision {
	return s.abac.EvaluatePolicies(ctx, abac.Attributes{
		Subject:  subjectAttrs,
		Resource: resourceAttrs,
		Context:  contextAttrs,
	})
}
