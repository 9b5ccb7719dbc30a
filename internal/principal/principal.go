// Package principal implements the Principal Registry (C4): the unifying
// identity record for users and services, and every credential-lifecycle
// operation that mutates it.
package principal

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/laventecare/identitycore/internal/federation"
	"github.com/laventecare/identitycore/internal/hashing"
	"github.com/laventecare/identitycore/internal/identityerr"
	"github.com/laventecare/identitycore/internal/notify"
)

// Kind distinguishes the two principal flavors sharing the registry.
type Kind string

const (
	KindUser    Kind = "USER"
	KindService Kind = "SERVICE"
)

// Principal is the unifying identity record. (kind, external_id) is unique.
type Principal struct {
	ID         uuid.UUID
	Kind       Kind
	ExternalID string
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}

// User holds the USER-kind principal's profile.
type User struct {
	ID                     uuid.UUID
	Email                  string
	DisplayName            *string
	PasswordHash           *string
	RememberMeToken        *string
	PasswordResetToken     *string
	PasswordResetExpiresAt *time.Time
	PasswordResetUsedAt    *time.Time
}

// ServiceCredential is SERVICE-kind secret material, 1-1 with a SERVICE principal.
type ServiceCredential struct {
	PrincipalID      uuid.UUID
	ClientSecretHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ResetAttempt is a single password-reset-request timestamp, used for rate limiting.
type ResetAttempt struct {
	Email       string
	AttemptedAt time.Time
}

// Stores — the persistence ports the registry composes.

type PrincipalStore interface {
	FindByKindAndExternalID(ctx context.Context, kind Kind, externalID string) (*Principal, error)
	Save(ctx context.Context, p *Principal) error
	Update(ctx context.Context, p *Principal) error
}

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByRememberMeToken(ctx context.Context, token string) (*User, error)
	FindByResetToken(ctx context.Context, token string) (*User, error)
	Save(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	DeleteAll(ctx context.Context) error
}

type ServiceCredentialStore interface {
	FindByPrincipalID(ctx context.Context, principalID uuid.UUID) (*ServiceCredential, error)
	Save(ctx context.Context, c *ServiceCredential) error
}

type PasswordResetAttemptStore interface {
	CountSince(ctx context.Context, email string, since time.Time) (int, error)
	Record(ctx context.Context, attempt ResetAttempt) error
}

// PermissionLookup resolves a permission name to an id for the
// registration-time validation registerService performs (unknown names
// fail the whole registration).
type PermissionLookup interface {
	FindByName(ctx context.Context, name string) (id uuid.UUID, found bool, err error)
}

// RoleAssignmentWriter is the narrow authz collaborator needed to grant the
// requested permissions to a freshly-registered service principal.
type RoleAssignmentWriter interface {
	AssignPermissionsDirect(ctx context.Context, principalID uuid.UUID, permissionIDs []uuid.UUID) error
}

const rememberMeTokenLen = 32

// Registry implements every §4.4 operation.
type Registry struct {
	principals  PrincipalStore
	users       UserStore
	credentials ServiceCredentialStore
	resets      PasswordResetAttemptStore
	permissions PermissionLookup
	grants      RoleAssignmentWriter
	hasher      hashing.Hasher
	federation  *federation.Registry
	mailer      notify.EmailSender

	resetTTL         time.Duration
	resetMaxAttempts int
	resetWindow      time.Duration
	resetBurst       *emailLimiter
}

// Option customizes a Registry at construction.
type Option func(*Registry)

func WithResetTTL(d time.Duration) Option { return func(r *Registry) { r.resetTTL = d } }

func WithResetRateLimit(max int, window time.Duration) Option {
	return func(r *Registry) { r.resetMaxAttempts = max; r.resetWindow = window }
}

// NewRegistry wires the registry from its store and collaborator ports.
func NewRegistry(
	principals PrincipalStore,
	users UserStore,
	credentials ServiceCredentialStore,
	resets PasswordResetAttemptStore,
	permissions PermissionLookup,
	grants RoleAssignmentWriter,
	hasher hashing.Hasher,
	fed *federation.Registry,
	mailer notify.EmailSender,
	opts ...Option,
) *Registry {
	r := &Registry{
		principals:       principals,
		users:            users,
		credentials:      credentials,
		resets:           resets,
		permissions:      permissions,
		grants:           grants,
		hasher:           hasher,
		federation:       fed,
		mailer:           mailer,
		resetTTL:         time.Hour,
		resetMaxAttempts: 3,
		resetWindow:      time.Hour,
		resetBurst:       newEmailLimiter(rate.Every(time.Second), 2),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword enforces the password policy: minimum length 8,
// uppercase, lowercase, digit, and a non-alphanumeric character.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return identityerr.Validation("password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit || !hasSymbol {
		return identityerr.Validation("password must contain upper, lower, digit, and a symbol")
	}
	return nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Register creates a new USER principal and profile. Duplicate emails
// (case-insensitive) are a validation error.
func (r *Registry) Register(ctx context.Context, displayName, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if existing, err := r.users.FindByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, identityerr.Validation("email already registered")
	}

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := r.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &Principal{
		ID:         uuid.New(),
		Kind:       KindUser,
		ExternalID: "",
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	p.ExternalID = p.ID.String()
	if err := r.principals.Save(ctx, p); err != nil {
		return nil, err
	}

	name := displayName
	user := &User{
		ID:           p.ID,
		Email:        email,
		DisplayName:  &name,
		PasswordHash: &hash,
	}
	if err := r.users.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// principalEnabled reports whether the USER principal for userID is enabled.
func (r *Registry) principalEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	p, err := r.principals.FindByKindAndExternalID(ctx, KindUser, userID.String())
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, nil
	}
	return p.Enabled, nil
}

// FindEnabledUser loads a user by id, returning nil if missing or disabled.
func (r *Registry) FindEnabledUser(ctx context.Context, userID uuid.UUID) (*User, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	enabled, err := r.principalEnabled(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}
	return user, nil
}

// FindEnabledUserByID adapts Registry to the session package's narrow
// UserLookup port, so session.Manager can reject refreshes for a missing or
// disabled user without importing the whole registry.
func (r *Registry) FindEnabledUserByID(ctx context.Context, id uuid.UUID) (email string, enabled bool, found bool, err error) {
	user, err := r.users.FindByID(ctx, id)
	if err != nil {
		return "", false, false, err
	}
	if user == nil {
		return "", false, false, nil
	}
	ok, err := r.principalEnabled(ctx, user.ID)
	if err != nil {
		return "", false, false, err
	}
	return user.Email, ok, true, nil
}

// Authenticate verifies email/password. It never distinguishes "no such
// user" from "wrong password" from "disabled" on the failure path — every
// case returns (nil, nil).
func (r *Registry) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if password == "" {
		return nil, nil
	}
	email = normalizeEmail(email)

	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == nil {
		return nil, nil
	}
	if !r.hasher.Verify(password, *user.PasswordHash) {
		return nil, nil
	}

	enabled, err := r.principalEnabled(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}
	return user, nil
}

// AuthenticateWithOAuth dispatches to C5 by provider name, then finds or
// creates the corresponding user.
func (r *Registry) AuthenticateWithOAuth(ctx context.Context, provider, assertion string) (*User, error) {
	adapter, ok := r.federation.Lookup(provider)
	if !ok {
		return nil, identityerr.Validation("unsupported identity provider")
	}

	claims, err := adapter.ValidateAndExtractClaims(ctx, assertion)
	if err != nil || claims == nil {
		return nil, identityerr.Validation("invalid federated identity assertion")
	}

	email := normalizeEmail(claims.Email)
	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user != nil {
		enabled, err := r.principalEnabled(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if !enabled {
			return nil, nil
		}
		if user.DisplayName == nil && claims.Name != "" {
			name := claims.Name
			user.DisplayName = &name
			if err := r.users.Update(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	}

	now := time.Now()
	p := &Principal{ID: uuid.New(), Kind: KindUser, Enabled: true, CreatedAt: now, UpdatedAt: now, Version: 1}
	p.ExternalID = p.ID.String()
	if err := r.principals.Save(ctx, p); err != nil {
		return nil, err
	}

	var name *string
	if claims.Name != "" {
		n := claims.Name
		name = &n
	}
	created := &User{ID: p.ID, Email: email, DisplayName: name}
	if err := r.users.Save(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// RegisterService creates a SERVICE principal, generates a client secret,
// and assigns the requested permissions. The cleartext secret is returned
// exactly once.
func (r *Registry) RegisterService(ctx context.Context, serviceID string, permissionNames []string) (principalID, svcID uuid.UUID, clientSecret string, permissions []string, err error) {
	if existing, err := r.principals.FindByKindAndExternalID(ctx, KindService, serviceID); err != nil {
		return uuid.Nil, uuid.Nil, "", nil, err
	} else if existing != nil {
		return uuid.Nil, uuid.Nil, "", nil, identityerr.Validation("service id already registered")
	}

	permissionIDs := make([]uuid.UUID, 0, len(permissionNames))
	for _, name := range permissionNames {
		id, found, lookupErr := r.permissions.FindByName(ctx, name)
		if lookupErr != nil {
			return uuid.Nil, uuid.Nil, "", nil, lookupErr
		}
		if !found {
			return uuid.Nil, uuid.Nil, "", nil, identityerr.Validation("unknown permission: " + name)
		}
		permissionIDs = append(permissionIDs, id)
	}

	secret, err := randomToken(32)
	if err != nil {
		return uuid.Nil, uuid.Nil, "", nil, err
	}
	secretHash, err := r.hasher.Hash(secret)
	if err != nil {
		return uuid.Nil, uuid.Nil, "", nil, err
	}

	now := time.Now()
	p := &Principal{ID: uuid.New(), Kind: KindService, ExternalID: serviceID, Enabled: true, CreatedAt: now, UpdatedAt: now, Version: 1}
	if err := r.principals.Save(ctx, p); err != nil {
		return uuid.Nil, uuid.Nil, "", nil, err
	}

	cred := &ServiceCredential{PrincipalID: p.ID, ClientSecretHash: secretHash, CreatedAt: now, UpdatedAt: now}
	if err := r.credentials.Save(ctx, cred); err != nil {
		return uuid.Nil, uuid.Nil, "", nil, err
	}

	if len(permissionIDs) > 0 {
		if err := r.grants.AssignPermissionsDirect(ctx, p.ID, permissionIDs); err != nil {
			return uuid.Nil, uuid.Nil, "", nil, err
		}
	}

	return p.ID, p.ID, secret, permissionNames, nil
}

// ValidateServiceCredentials verifies (serviceID, cleartext) the same way a
// password is verified, then checks the SERVICE principal's enabled flag.
func (r *Registry) ValidateServiceCredentials(ctx context.Context, serviceID uuid.UUID, cleartext string) (*Principal, error) {
	cred, err := r.credentials.FindByPrincipalID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if cred == nil || !r.hasher.Verify(cleartext, cred.ClientSecretHash) {
		return nil, nil
	}

	p, err := r.principals.FindByKindAndExternalID(ctx, KindService, serviceID.String())
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Enabled {
		return nil, nil
	}
	return p, nil
}

// RequestPasswordReset always reports success externally to avoid user
// enumeration; internally it no-ops when the user does not exist or the
// rate limit is exceeded.
func (r *Registry) RequestPasswordReset(ctx context.Context, email, locale string) (bool, error) {
	email = normalizeEmail(email)

	if !r.resetBurst.Allow(email) {
		return true, nil
	}

	count, err := r.resets.CountSince(ctx, email, time.Now().Add(-r.resetWindow))
	if err != nil {
		return false, err
	}
	if count >= r.resetMaxAttempts {
		return true, nil
	}

	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if user == nil {
		return true, nil
	}

	token, err := randomToken(32)
	if err != nil {
		return false, err
	}
	expiry := time.Now().Add(r.resetTTL)
	user.PasswordResetToken = &token
	user.PasswordResetExpiresAt = &expiry
	user.PasswordResetUsedAt = nil
	if err := r.users.Update(ctx, user); err != nil {
		return false, err
	}

	if err := r.resets.Record(ctx, ResetAttempt{Email: email, AttemptedAt: time.Now()}); err != nil {
		return false, err
	}

	_ = r.mailer.SendPasswordReset(ctx, email, token, locale)
	return true, nil
}

// ValidateResetToken reports whether token matches an unexpired, unused reset record.
func (r *Registry) ValidateResetToken(ctx context.Context, token string) (*User, bool, error) {
	user, err := r.users.FindByResetToken(ctx, token)
	if err != nil || user == nil {
		return nil, false, err
	}
	if user.PasswordResetUsedAt != nil {
		return nil, false, nil
	}
	if user.PasswordResetExpiresAt == nil || time.Now().After(*user.PasswordResetExpiresAt) {
		return nil, false, nil
	}
	return user, true, nil
}

// ResetPassword validates token, applies the password policy, hashes the
// new password, and atomically marks the token consumed. Once it succeeds
// the same token cannot be reused.
func (r *Registry) ResetPassword(ctx context.Context, token, newPassword string) (*User, error) {
	user, valid, err := r.ValidateResetToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, identityerr.AuthRequired("invalid or expired reset token")
	}

	if err := ValidatePassword(newPassword); err != nil {
		return nil, err
	}

	hash, err := r.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.PasswordHash = &hash
	user.PasswordResetToken = nil
	user.PasswordResetExpiresAt = nil
	user.PasswordResetUsedAt = &now

	if err := r.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GenerateRememberMeToken produces a fresh legacy opaque remember-me value.
// It is intentionally unrelated to the refresh-token family lifecycle.
func (r *Registry) GenerateRememberMeToken() (string, error) {
	return randomToken(rememberMeTokenLen)
}

// SaveRememberMeToken persists token against the user.
func (r *Registry) SaveRememberMeToken(ctx context.Context, user *User, token string) error {
	user.RememberMeToken = &token
	return r.users.Update(ctx, user)
}

// AuthenticateByRememberMeToken looks the token up directly; enabled check applies.
func (r *Registry) AuthenticateByRememberMeToken(ctx context.Context, token string) (*User, error) {
	user, err := r.users.FindByRememberMeToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	enabled, err := r.principalEnabled(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}
	return user, nil
}

// ClearRememberMeToken removes the remember-me value, e.g. on logout.
func (r *Registry) ClearRememberMeToken(ctx context.Context, user *User) error {
	user.RememberMeToken = nil
	return r.users.Update(ctx, user)
}
