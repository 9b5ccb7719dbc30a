package abac

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPolicyStore struct {
	policies []Policy
}

func (s *stubPolicyStore) FindActive(_ context.Context) ([]Policy, error) {
	return s.policies, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExplicitDenyOverridesAllow(t *testing.T) {
	cond := []byte(`{"eq":{"subject.userId":"u"}}`)
	store := &stubPolicyStore{policies: []Policy{
		{ID: "p1", Name: "allow-u", Effect: EffectAllow, Condition: cond, IsActive: true},
		{ID: "p2", Name: "deny-u", Effect: EffectDeny, Condition: cond, IsActive: true},
	}}
	engine := NewEngine(store, testLogger())

	decision := engine.EvaluatePolicies(context.Background(), Attributes{
		Subject: map[string]interface{}{"userId": "u"},
	})

	assert.Equal(t, EffectDeny, decision.Decision)
	assert.Len(t, decision.MatchedPolicies, 2)
	assert.Contains(t, decision.Reason, "Access denied by ABAC policy")
}

func TestAllowWhenNoDenyMatches(t *testing.T) {
	cond := []byte(`{"eq":{"subject.userId":"u"}}`)
	store := &stubPolicyStore{policies: []Policy{
		{ID: "p1", Name: "allow-u", Effect: EffectAllow, Condition: cond, IsActive: true},
	}}
	engine := NewEngine(store, testLogger())

	decision := engine.EvaluatePolicies(context.Background(), Attributes{
		Subject: map[string]interface{}{"userId": "u"},
	})
	assert.Equal(t, EffectAllow, decision.Decision)
}

func TestNoMatchYieldsAbsentDecision(t *testing.T) {
	cond := []byte(`{"eq":{"subject.userId":"other"}}`)
	store := &stubPolicyStore{policies: []Policy{
		{ID: "p1", Name: "allow-other", Effect: EffectAllow, Condition: cond, IsActive: true},
	}}
	engine := NewEngine(store, testLogger())

	decision := engine.EvaluatePolicies(context.Background(), Attributes{
		Subject: map[string]interface{}{"userId": "u"},
	})
	assert.Empty(t, decision.Decision)
	assert.Contains(t, decision.Reason, "No matching ABAC policies")
}

func TestInactivePolicyNeverMatches(t *testing.T) {
	cond := []byte(`{"eq":{"subject.userId":"u"}}`)
	store := &stubPolicyStore{policies: []Policy{
		{ID: "p1", Name: "deny-u", Effect: EffectDeny, Condition: cond, IsActive: false},
	}}
	engine := NewEngine(store, testLogger())

	decision := engine.EvaluatePolicies(context.Background(), Attributes{
		Subject: map[string]interface{}{"userId": "u"},
	})
	assert.Empty(t, decision.Decision)
}

func TestMalformedPolicyDoesNotBlockSiblings(t *testing.T) {
	store := &stubPolicyStore{policies: []Policy{
		{ID: "broken", Name: "broken", Effect: EffectAllow, Condition: []byte(`not json`), IsActive: true},
		{ID: "ok", Name: "ok", Effect: EffectAllow, Condition: []byte(`{"eq":{"subject.userId":"u"}}`), IsActive: true},
	}}
	engine := NewEngine(store, testLogger())

	decision := engine.EvaluatePolicies(context.Background(), Attributes{
		Subject: map[string]interface{}{"userId": "u"},
	})
	require.Equal(t, EffectAllow, decision.Decision)
	assert.Equal(t, []string{"ok"}, decision.MatchedPolicies)
}

func TestOversizedPolicyConditionSkipped(t *testing.T) {
	huge := make([]byte, MaxConditionBytes+1)
	for i := range huge {
		huge[i] = 'x'
	}
	store := &stubPolicyStore{policies: []Policy{
		{ID: "huge", Name: "huge", Effect: EffectDeny, Condition: huge, IsActive: true},
	}}
	engine := NewEngine(store, testLogger())

	decision := engine.EvaluatePolicies(context.Background(), Attributes{})
	assert.Empty(t, decision.Decision)
	assert.Empty(t, decision.MatchedPolicies)
}
