// Package token implements the Token Codec (C2): signs, verifies, and
// parses access, refresh, and service credentials.
package token

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type distinguishes the kind of token a signed string carries.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
	TypeService Type = "service"
)

// Common errors. Any failure during verification — expired, malformed,
// tampered, wrong-key, untyped — collapses to one of these two; the caller
// never branches on anything finer-grained than "expired vs. invalid".
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the custom JWT claim set shared by every token type this codec
// issues. Permissions is always a non-nil slice on access/service tokens,
// even when empty, so downstream consumers never need a null check.
type Claims struct {
	Type            Type     `json:"type"`
	Email           string   `json:"email,omitempty"`
	Permissions     []string `json:"permissions"`
	Audience        string   `json:"svc_aud,omitempty"`
	UserID          string   `json:"user_id,omitempty"`
	UserPermissions []string `json:"user_permissions,omitempty"`
	jwt.RegisteredClaims
}

// Codec defines the contract for issuing and validating tokens.
type Codec interface {
	IssueAccess(principalID uuid.UUID, email string, permissions []string) (string, error)
	IssueRefresh(principalID uuid.UUID) (string, error)
	IssueService(serviceID uuid.UUID, audience string, permissions []string) (string, error)
	IssueServiceWithUser(serviceID uuid.UUID, audience string, permissions []string, userID uuid.UUID, userPermissions []string) (string, error)
	Verify(signed string) (*Claims, error)
	IsAccess(signed string) bool
	IsRefresh(signed string) bool
	Subject(signed string) (uuid.UUID, bool)
	Permissions(signed string) ([]string, bool)
	Expiry(signed string) (time.Time, bool)
}

// JWTCodec implements Codec with HS256 over a process-wide shared secret.
type JWTCodec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// Option customizes a JWTCodec at construction time.
type Option func(*JWTCodec)

// WithIssuer overrides the default issuer claim.
func WithIssuer(issuer string) Option {
	return func(c *JWTCodec) { c.issuer = issuer }
}

// WithAccessTTL overrides the default access-token lifetime (900s).
func WithAccessTTL(ttl time.Duration) Option {
	return func(c *JWTCodec) { c.accessTTL = ttl }
}

// WithRefreshTTL overrides the default refresh-token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(c *JWTCodec) { c.refreshTTL = ttl }
}

// NewJWTCodec builds a codec over secret. A secret shorter than 32 bytes
// produces a startup warning but does not prevent construction, easing dev
// environments per §4.2.
func NewJWTCodec(secret []byte, opts ...Option) *JWTCodec {
	if len(secret) < 32 {
		slog.Warn("token: signing secret shorter than 32 bytes", "length", len(secret))
	}

	c := &JWTCodec{
		secret:     secret,
		issuer:     "identitycore",
		accessTTL:  900 * time.Second,
		refreshTTL: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *JWTCodec) registeredClaims(sub string, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   sub,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *JWTCodec) sign(claims *Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// IssueAccess signs a short-lived access token. permissions is always
// rendered as an array — a nil slice in is a non-nil empty slice out.
func (c *JWTCodec) IssueAccess(principalID uuid.UUID, email string, permissions []string) (string, error) {
	if permissions == nil {
		permissions = []string{}
	}
	claims := &Claims{
		Type:             TypeAccess,
		Email:            email,
		Permissions:      permissions,
		RegisteredClaims: c.registeredClaims(principalID.String(), c.accessTTL),
	}
	return c.sign(claims)
}

// IssueRefresh signs the long-lived opaque-looking refresh credential. The
// server never trusts this signature alone for refresh validity — the
// Refresh Token Store (C3) looks up the SHA-256 of this string.
func (c *JWTCodec) IssueRefresh(principalID uuid.UUID) (string, error) {
	claims := &Claims{
		Type:             TypeRefresh,
		RegisteredClaims: c.registeredClaims(principalID.String(), c.refreshTTL),
	}
	return c.sign(claims)
}

// IssueService signs a service-to-service credential.
func (c *JWTCodec) IssueService(serviceID uuid.UUID, audience string, permissions []string) (string, error) {
	if permissions == nil {
		permissions = []string{}
	}
	claims := &Claims{
		Type:             TypeService,
		Audience:         audience,
		Permissions:      permissions,
		RegisteredClaims: c.registeredClaims(serviceID.String(), c.accessTTL),
	}
	return c.sign(claims)
}

// IssueServiceWithUser signs a service credential that also propagates the
// calling user's context (on-behalf-of requests).
func (c *JWTCodec) IssueServiceWithUser(serviceID uuid.UUID, audience string, permissions []string, userID uuid.UUID, userPermissions []string) (string, error) {
	if permissions == nil {
		permissions = []string{}
	}
	if userPermissions == nil {
		userPermissions = []string{}
	}
	claims := &Claims{
		Type:             TypeService,
		Audience:         audience,
		Permissions:      permissions,
		UserID:           userID.String(),
		UserPermissions:  userPermissions,
		RegisteredClaims: c.registeredClaims(serviceID.String(), c.accessTTL),
	}
	return c.sign(claims)
}

// Verify parses and validates signed. Expired tokens map to ErrExpiredToken;
// every other failure — malformed, tampered, wrong-key, untyped — maps to
// ErrInvalidToken. Verification never panics.
func (c *JWTCodec) Verify(signed string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(signed, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		slog.Debug("token: verification failed", "error", err)
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Type == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IsAccess reports whether signed is a well-formed, currently-valid access
// token. Any other outcome — wrong type, expired, malformed — is false.
func (c *JWTCodec) IsAccess(signed string) bool {
	claims, err := c.Verify(signed)
	return err == nil && claims.Type == TypeAccess
}

// IsRefresh reports whether signed is a well-formed, currently-valid refresh
// token.
func (c *JWTCodec) IsRefresh(signed string) bool {
	claims, err := c.Verify(signed)
	return err == nil && claims.Type == TypeRefresh
}

// Subject extracts the principal id, or false if the token does not verify.
func (c *JWTCodec) Subject(signed string) (uuid.UUID, bool) {
	claims, err := c.Verify(signed)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Permissions extracts the permissions claim, or false if the token does
// not verify.
func (c *JWTCodec) Permissions(signed string) ([]string, bool) {
	claims, err := c.Verify(signed)
	if err != nil {
		return nil, false
	}
	if claims.Permissions == nil {
		return []string{}, true
	}
	return claims.Permissions, true
}

// Expiry extracts the expiry instant, or false if the token does not verify.
func (c *JWTCodec) Expiry(signed string) (time.Time, bool) {
	claims, err := c.Verify(signed)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
