// Package federation implements the Federated Identity Adapter (C5): a
// closed provider-name registry over normalized identity claims.
package federation

import "context"

// Claims is the normalized shape every provider must reduce its assertion
// to. Fields beyond email/name/picture/emailVerified are out of scope.
type Claims struct {
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// Provider validates an external-issuer assertion and extracts Claims.
type Provider interface {
	ProviderName() string
	ValidateAndExtractClaims(ctx context.Context, assertion string) (*Claims, error)
}

// Registry is a closed map from provider name to Provider, built once at
// construction and never mutated afterward — new providers are wired at
// process startup, not registered at call time.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a closed registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.ProviderName()] = p
	}
	return &Registry{providers: m}
}

// Lookup returns the provider registered under name, if any.
func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}
