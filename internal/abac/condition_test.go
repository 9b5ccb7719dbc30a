package abac

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *Condition {
	t.Helper()
	cond, err := Parse([]byte(raw))
	require.NoError(t, err)
	return cond
}

func TestEqMatchesScalar(t *testing.T) {
	cond := mustParse(t, `{"eq":{"subject.userId":"u"}}`)
	attrs := Attributes{Subject: map[string]interface{}{"userId": "u"}}
	assert.True(t, Evaluate(cond, attrs, 0))

	attrs.Subject["userId"] = "other"
	assert.False(t, Evaluate(cond, attrs, 0))
}

func TestNeIsNegationOfEq(t *testing.T) {
	cond := mustParse(t, `{"ne":{"subject.userId":"u"}}`)
	attrs := Attributes{Subject: map[string]interface{}{"userId": "other"}}
	assert.True(t, Evaluate(cond, attrs, 0))
}

func TestNumericComparisons(t *testing.T) {
	cond := mustParse(t, `{"gte":{"resource.level":3}}`)
	assert.True(t, Evaluate(cond, Attributes{Resource: map[string]interface{}{"level": 3.0}}, 0))
	assert.True(t, Evaluate(cond, Attributes{Resource: map[string]interface{}{"level": 5.0}}, 0))
	assert.False(t, Evaluate(cond, Attributes{Resource: map[string]interface{}{"level": 2.0}}, 0))
}

func TestNullComparisonIsFalse(t *testing.T) {
	cond := mustParse(t, `{"eq":{"subject.missing":"x"}}`)
	assert.False(t, Evaluate(cond, Attributes{Subject: map[string]interface{}{}}, 0))
}

func TestMultiFieldComparisonIsFalse(t *testing.T) {
	cond := mustParse(t, `{"eq":{"subject.a":"1","subject.b":"2"}}`)
	assert.False(t, Evaluate(cond, Attributes{Subject: map[string]interface{}{"a": "1", "b": "2"}}, 0))
}

func TestUnknownOperatorIsFalse(t *testing.T) {
	cond := mustParse(t, `{"xor":{"subject.a":"1"}}`)
	assert.False(t, Evaluate(cond, Attributes{}, 0))
}

func TestInOperatorNonArrayLiteralIsFalse(t *testing.T) {
	cond := mustParse(t, `{"in":{"subject.roles":"admin"}}`)
	attrs := Attributes{Subject: map[string]interface{}{"roles": []interface{}{"admin", "viewer"}}}
	assert.False(t, Evaluate(cond, attrs, 0))
}

func TestInOperatorArrayIntersection(t *testing.T) {
	cond := mustParse(t, `{"in":{"subject.roles":["admin"]}}`)
	attrs := Attributes{Subject: map[string]interface{}{"roles": []interface{}{"admin", "viewer"}}}
	assert.True(t, Evaluate(cond, attrs, 0))

	attrs.Subject["roles"] = []interface{}{"viewer"}
	assert.False(t, Evaluate(cond, attrs, 0))
}

func TestAndOrShortCircuit(t *testing.T) {
	and := mustParse(t, `{"and":[{"eq":{"subject.a":"1"}},{"eq":{"subject.b":"2"}}]}`)
	attrs := Attributes{Subject: map[string]interface{}{"a": "1", "b": "2"}}
	assert.True(t, Evaluate(and, attrs, 0))

	attrs.Subject["b"] = "wrong"
	assert.False(t, Evaluate(and, attrs, 0))

	or := mustParse(t, `{"or":[{"eq":{"subject.a":"1"}},{"eq":{"subject.b":"2"}}]}`)
	assert.True(t, Evaluate(or, attrs, 0))
}

func TestNotNegatesChild(t *testing.T) {
	cond := mustParse(t, `{"not":{"eq":{"subject.a":"1"}}}`)
	assert.False(t, Evaluate(cond, Attributes{Subject: map[string]interface{}{"a": "1"}}, 0))
	assert.True(t, Evaluate(cond, Attributes{Subject: map[string]interface{}{"a": "2"}}, 0))
}

func nestedAnd(levels int, leaf string) string {
	cond := leaf
	for i := 0; i < levels; i++ {
		cond = `{"and":[` + cond + `]}`
	}
	return cond
}

func TestDepthHardening(t *testing.T) {
	leaf := `{"eq":{"subject.userId":"u"}}`
	attrs := Attributes{Subject: map[string]interface{}{"userId": "u"}}

	at10 := mustParse(t, nestedAnd(10, leaf))
	assert.True(t, Evaluate(at10, attrs, 0))

	at11 := mustParse(t, nestedAnd(11, leaf))
	assert.False(t, Evaluate(at11, attrs, 0))
}

func TestOversizedConditionFailsToParse(t *testing.T) {
	huge := `{"eq":{"subject.userId":"` + strings.Repeat("x", MaxConditionBytes) + `"}}`
	_, err := Parse([]byte(huge))
	assert.Error(t, err)
}

func TestMalformedJSONFailsToParse(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestPathMustHaveRoot(t *testing.T) {
	cond := mustParse(t, `{"eq":{"userId":"u"}}`)
	assert.False(t, Evaluate(cond, Attributes{Subject: map[string]interface{}{"userId": "u"}}, 0))
}
