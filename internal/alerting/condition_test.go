// File: internal/alerting/condition_test.go
package alerting

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *Condition {
	t.Helper()
	cond, err := ParseCondition(json.RawMessage(raw))
	require.NoError(t, err)
	return cond
}

func TestParseCondition(t *testing.T) {
	t.Run("valid leaf", func(t *testing.T) {
		cond := mustParse(t, `{"op":"eq","field":"amount","value":100}`)
		assert.Equal(t, OpEq, cond.Op)
		assert.Equal(t, "amount", cond.Field)
	})

	t.Run("valid composite", func(t *testing.T) {
		cond := mustParse(t, `{"op":"and","conditions":[{"op":"eq","field":"a","value":1},{"op":"gt","field":"b","value":2}]}`)
		require.Len(t, cond.Conditions, 2)
	})

	t.Run("valid negation", func(t *testing.T) {
		cond := mustParse(t, `{"op":"not","condition":{"op":"eq","field":"asset","value":"XLM"}}`)
		assert.Equal(t, OpNot, cond.Op)
		require.NotNil(t, cond.Condition)
		assert.Equal(t, OpEq, cond.Condition.Op)
	})

	t.Run("negation without child", func(t *testing.T) {
		_, err := ParseCondition(json.RawMessage(`{"op":"not"}`))
		assert.Error(t, err)
	})

	t.Run("invalid child inside negation", func(t *testing.T) {
		_, err := ParseCondition(json.RawMessage(`{"op":"not","condition":{"op":"bogus","field":"a"}}`))
		assert.Error(t, err)
	})

	t.Run("unknown operator", func(t *testing.T) {
		_, err := ParseCondition(json.RawMessage(`{"op":"regex","field":"a","value":"x"}`))
		assert.Error(t, err)
	})

	t.Run("nested unknown operator", func(t *testing.T) {
		_, err := ParseCondition(json.RawMessage(`{"op":"or","conditions":[{"op":"bogus","field":"a"}]}`))
		assert.Error(t, err)
	})

	t.Run("leaf without field", func(t *testing.T) {
		_, err := ParseCondition(json.RawMessage(`{"op":"eq","value":1}`))
		assert.Error(t, err)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := ParseCondition(json.RawMessage(`{"op":`))
		assert.Error(t, err)
	})
}

func TestEvaluateEquality(t *testing.T) {
	payload := map[string]interface{}{
		"amount": float64(100),
		"from":   "GABC",
		"flag":   true,
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"eq number match", `{"op":"eq","field":"amount","value":100}`, true},
		{"eq number mismatch", `{"op":"eq","field":"amount","value":101}`, false},
		{"eq string match", `{"op":"eq","field":"from","value":"GABC"}`, true},
		{"eq compares string forms across types", `{"op":"eq","field":"amount","value":"100"}`, true},
		{"eq missing field never equals a value", `{"op":"eq","field":"nope","value":"x"}`, false},
		{"eq missing field equals None", `{"op":"eq","field":"nope","value":"None"}`, true},
		{"neq mismatch", `{"op":"neq","field":"from","value":"GXYZ"}`, true},
		{"neq match", `{"op":"neq","field":"from","value":"GABC"}`, false},
		{"neq missing field", `{"op":"neq","field":"nope","value":"x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(mustParse(t, tt.cond), payload))
		})
	}
}

func TestEvaluateNumericComparisons(t *testing.T) {
	payload := map[string]interface{}{
		"amount":  float64(100),
		"balance": "250.5",
		"name":    "alice",
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"gt true", `{"op":"gt","field":"amount","value":99}`, true},
		{"gt false on equal", `{"op":"gt","field":"amount","value":100}`, false},
		{"gte true on equal", `{"op":"gte","field":"amount","value":100}`, true},
		{"lt true", `{"op":"lt","field":"amount","value":101}`, true},
		{"lte false", `{"op":"lte","field":"amount","value":99}`, false},
		{"numeric string field parses", `{"op":"gt","field":"balance","value":250}`, true},
		{"numeric string value parses", `{"op":"lt","field":"amount","value":"200"}`, true},
		{"non-numeric field is false", `{"op":"gt","field":"name","value":1}`, false},
		{"non-numeric value is false", `{"op":"gt","field":"amount","value":"abc"}`, false},
		{"missing field is false", `{"op":"gt","field":"nope","value":1}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(mustParse(t, tt.cond), payload))
		})
	}
}

func TestEvaluateStringOperators(t *testing.T) {
	payload := map[string]interface{}{
		"memo": "payment for invoice 42",
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"contains match", `{"op":"contains","field":"memo","value":"invoice"}`, true},
		{"contains mismatch", `{"op":"contains","field":"memo","value":"refund"}`, false},
		{"contains missing field", `{"op":"contains","field":"nope","value":"None"}`, false},
		{"startswith match", `{"op":"startswith","field":"memo","value":"payment"}`, true},
		{"startswith mismatch", `{"op":"startswith","field":"memo","value":"invoice"}`, false},
		{"startswith missing field", `{"op":"startswith","field":"nope","value":"None"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(mustParse(t, tt.cond), payload))
		})
	}
}

func TestEvaluateIn(t *testing.T) {
	payload := map[string]interface{}{
		"asset":  "USDC",
		"amount": float64(5),
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"string member", `{"op":"in","field":"asset","value":["XLM","USDC"]}`, true},
		{"string non-member", `{"op":"in","field":"asset","value":["XLM","EURC"]}`, false},
		{"number member", `{"op":"in","field":"amount","value":[1,5,10]}`, true},
		{"no type coercion", `{"op":"in","field":"amount","value":["5"]}`, false},
		{"non-list value", `{"op":"in","field":"asset","value":"USDC"}`, false},
		{"missing field", `{"op":"in","field":"nope","value":["x"]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(mustParse(t, tt.cond), payload))
		})
	}
}

func TestEvaluateComposites(t *testing.T) {
	payload := map[string]interface{}{
		"amount": float64(100),
		"asset":  "USDC",
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"and both true", `{"op":"and","conditions":[{"op":"eq","field":"asset","value":"USDC"},{"op":"gt","field":"amount","value":50}]}`, true},
		{"and one false", `{"op":"and","conditions":[{"op":"eq","field":"asset","value":"USDC"},{"op":"gt","field":"amount","value":500}]}`, false},
		{"or one true", `{"op":"or","conditions":[{"op":"eq","field":"asset","value":"XLM"},{"op":"gt","field":"amount","value":50}]}`, true},
		{"or both false", `{"op":"or","conditions":[{"op":"eq","field":"asset","value":"XLM"},{"op":"gt","field":"amount","value":500}]}`, false},
		{"empty and is true", `{"op":"and","conditions":[]}`, true},
		{"empty or is false", `{"op":"or","conditions":[]}`, false},
		{"nested", `{"op":"or","conditions":[{"op":"and","conditions":[{"op":"eq","field":"asset","value":"USDC"},{"op":"lte","field":"amount","value":100}]}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(mustParse(t, tt.cond), payload))
		})
	}
}

func TestEvaluateNegation(t *testing.T) {
	payload := map[string]interface{}{
		"event_type": "transfer",
		"amount":     float64(100),
	}

	tests := []struct {
		name string
		cond string
		want bool
	}{
		{"not over false leaf", `{"op":"not","condition":{"op":"eq","field":"event_type","value":"swap"}}`, true},
		{"not over true leaf", `{"op":"not","condition":{"op":"eq","field":"event_type","value":"transfer"}}`, false},
		{"not over missing field equals None", `{"op":"not","condition":{"op":"eq","field":"nope","value":"None"}}`, false},
		{"double negation", `{"op":"not","condition":{"op":"not","condition":{"op":"gt","field":"amount","value":50}}}`, true},
		{"not inside and", `{"op":"and","conditions":[{"op":"gt","field":"amount","value":50},{"op":"not","condition":{"op":"eq","field":"event_type","value":"swap"}}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(mustParse(t, tt.cond), payload))
		})
	}
}

func TestEvaluateDottedPaths(t *testing.T) {
	payload := map[string]interface{}{
		"transfer": map[string]interface{}{
			"from":   "GABC",
			"detail": map[string]interface{}{"amount": float64(7)},
		},
	}

	assert.True(t, Evaluate(mustParse(t, `{"op":"eq","field":"transfer.from","value":"GABC"}`), payload))
	assert.True(t, Evaluate(mustParse(t, `{"op":"gt","field":"transfer.detail.amount","value":6}`), payload))
	assert.False(t, Evaluate(mustParse(t, `{"op":"gt","field":"transfer.from.amount","value":6}`), payload))
	assert.False(t, Evaluate(mustParse(t, `{"op":"eq","field":"transfer.missing","value":1}`), payload))
}

func TestEvaluateIsTotal(t *testing.T) {
	// A condition that bypassed validation must still evaluate, to false.
	assert.False(t, Evaluate(&Condition{Op: "regex", Field: "a", Value: "x"}, map[string]interface{}{"a": "x"}))
	assert.False(t, Evaluate(nil, map[string]interface{}{}))
	assert.False(t, Evaluate(&Condition{Op: OpEq, Field: "a", Value: "b"}, nil))
	assert.False(t, Evaluate(&Condition{Op: OpNot}, map[string]interface{}{}))
}
