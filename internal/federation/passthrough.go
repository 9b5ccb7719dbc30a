package federation

import (
	"context"
	"encoding/json"

	"github.com/laventecare/identitycore/internal/identityerr"
)

// PassthroughProvider treats the assertion as a pre-verified JSON claims
// blob. It is a scaffold for wiring a real OIDC client later: swap
// ValidateAndExtractClaims for one that verifies a signature or calls a
// userinfo endpoint before trusting the payload.
type PassthroughProvider struct {
	name string
}

// NewPassthroughProvider builds a provider registered under name.
func NewPassthroughProvider(name string) *PassthroughProvider {
	return &PassthroughProvider{name: name}
}

func (p *PassthroughProvider) ProviderName() string { return p.name }

func (p *PassthroughProvider) ValidateAndExtractClaims(_ context.Context, assertion string) (*Claims, error) {
	var raw struct {
		Email         string `json:"email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		EmailVerified bool   `json:"emailVerified"`
	}
	if err := json.Unmarshal([]byte(assertion), &raw); err != nil {
		return nil, identityerr.Validation("malformed federated identity assertion")
	}
	if raw.Email == "" {
		return nil, identityerr.Validation("federated identity assertion missing email")
	}
	return &Claims{
		Email:         raw.Email,
		Name:          raw.Name,
		Picture:       raw.Picture,
		EmailVerified: raw.EmailVerified,
	}, nil
}
