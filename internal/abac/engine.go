package abac

import (
	"context"
	"log/slog"
)

// Effect is the outcome a policy produces when its condition matches.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// Policy is an active ABAC policy as loaded from the store.
type Policy struct {
	ID        string
	Name      string
	Effect    Effect
	Condition []byte // raw JSON
	IsActive  bool
}

// Decision is absent ("") when no policy matched either way.
type Decision struct {
	Decision        Effect
	MatchedPolicies []string
	Reason          string
}

// PolicyStore is the consumed contract for loading active policies.
type PolicyStore interface {
	FindActive(ctx context.Context) ([]Policy, error)
}

// Engine evaluates the active policy set against an attribute triple.
type Engine struct {
	store  PolicyStore
	logger *slog.Logger
}

// NewEngine builds an Engine over store, logging parse/size/depth failures
// through logger without ever including condition text or values.
func NewEngine(store PolicyStore, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// EvaluatePolicies implements the §4.7 explicit-DENY-override combination
// rule: a matched DENY policy always wins; otherwise a matched ALLOW wins;
// otherwise the decision is absent.
func (e *Engine) EvaluatePolicies(ctx context.Context, attrs Attributes) Decision {
	policies, err := e.store.FindActive(ctx)
	if err != nil {
		return Decision{Reason: "No matching ABAC policies"}
	}

	var matched []string
	denied := false
	allowed := false

	for _, p := range policies {
		if !p.IsActive {
			continue
		}
		if e.policyMatches(p, attrs) {
			matched = append(matched, p.Name)
			switch p.Effect {
			case EffectDeny:
				denied = true
			case EffectAllow:
				allowed = true
			}
		}
	}

	switch {
	case denied:
		return Decision{Decision: EffectDeny, MatchedPolicies: matched, Reason: "Access denied by ABAC policy"}
	case allowed:
		return Decision{Decision: EffectAllow, MatchedPolicies: matched, Reason: ""}
	default:
		return Decision{MatchedPolicies: matched, Reason: "No matching ABAC policies"}
	}
}

// policyMatches applies the mandatory hardening caps before parsing: an
// oversized condition never reaches Parse/Evaluate. A malformed condition
// is logged by policy id only, never with the condition text.
func (e *Engine) policyMatches(p Policy, attrs Attributes) bool {
	if len(p.Condition) > MaxConditionBytes {
		e.logger.Warn("abac: policy condition exceeds size cap, skipping", "policy_id", p.ID)
		return false
	}

	cond, err := Parse(p.Condition)
	if err != nil {
		e.logger.Warn("abac: policy condition failed to parse, skipping", "policy_id", p.ID)
		return false
	}

	return Evaluate(cond, attrs, 0)
}
