package authz

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/laventecare/identitycore/internal/identityerr"
	"github.com/laventecare/identitycore/internal/token"
)

// RequestPrincipal wraps a verified bearer access token for the lifetime of
// one request.
type RequestPrincipal struct {
	UserID               uuid.UUID
	Token                string
	PermissionsFromToken []string
}

// Extractor turns a raw Authorization header into a RequestPrincipal.
type Extractor struct {
	codec token.Codec
}

// NewExtractor builds an Extractor over codec.
func NewExtractor(codec token.Codec) *Extractor {
	return &Extractor{codec: codec}
}

// FromBearer parses "Bearer <token>", verifies it as an access token, and
// returns the request principal. Any failure — missing header, wrong
// scheme, invalid/expired token, wrong type — raises "authentication
// required" uniformly.
func (e *Extractor) FromBearer(header string) (*RequestPrincipal, error) {
	const prefix = "Bearer "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return nil, identityerr.AuthRequired("missing bearer token")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if raw == "" {
		return nil, identityerr.AuthRequired("missing bearer token")
	}

	claims, err := e.codec.Verify(raw)
	if err != nil || claims.Type != token.TypeAccess {
		return nil, identityerr.AuthRequired("invalid or expired access token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, identityerr.AuthRequired("invalid or expired access token")
	}

	permissions := claims.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	return &RequestPrincipal{
		UserID:               userID,
		Token:                raw,
		PermissionsFromToken: permissions,
	}, nil
}

// Cache holds a lazily-resolved authorization Context for exactly one
// request. It is a plain field meant to live on the caller's per-request
// struct — never package-level state — so concurrent requests never share
// a cache entry.
type Cache struct {
	once    sync.Once
	context *Context
	err     error
}

// Resolved returns the resolved Context for principal, calling resolver at
// most once no matter how many times it is invoked within the same
// request's Cache.
func (c *Cache) Resolved(ctx context.Context, principal *RequestPrincipal, email string, displayName *string, resolver Resolver) (*Context, error) {
	c.once.Do(func() {
		c.context, c.err = resolver.EffectiveContext(ctx, principal.UserID, email, displayName)
	})
	return c.context, c.err
}
