package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateComparisons(t *testing.T) {
	evaluator := NewConditionEvaluator()
	variables := map[string]interface{}{
		"amount": 150,
		"name":   "alice",
		"nested": map[string]interface{}{
			"level": 3,
		},
		"condition:check": true,
	}

	tests := []struct {
		name       string
		expression string
		expected   bool
	}{
		{"greater than true", "context.variables.amount > 100", true},
		{"greater than false", "context.variables.amount > 200", false},
		{"less than", "context.variables.amount < 200", true},
		{"greater or equal boundary", "context.variables.amount >= 150", true},
		{"less or equal boundary", "context.variables.amount <= 149", false},
		{"equality number", "context.variables.amount == 150", true},
		{"strict equality number", "context.variables.amount === 150", true},
		{"inequality number", "context.variables.amount != 150", false},
		{"strict inequality", "context.variables.amount !== 100", true},
		{"string equality", "context.variables.name == 'alice'", true},
		{"double quoted string", `context.variables.name == "alice"`, true},
		{"nested path", "context.variables.nested.level == 3", true},
		{"bracket path", "context.variables['condition:check'] === true", true},
		{"bracket path false", "context.variables['condition:check'] === false", false},
		{"boolean literal", "true", true},
		{"and combinator", "context.variables.amount > 100 && context.variables.name == 'alice'", true},
		{"and short circuit", "context.variables.amount > 500 && context.variables.name == 'alice'", false},
		{"or combinator", "context.variables.amount > 500 || context.variables.name == 'alice'", true},
		{"negation", "!(context.variables.amount > 500)", true},
		{"parentheses", "(context.variables.amount > 100 || false) && true", true},
		{"missing variable equals null", "context.variables.missing == null", true},
		{"missing variable equality", "context.variables.missing == 5", false},
		{"bare variables root", "variables.amount > 100", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, evaluator.EvaluateBool(tt.expression, variables))
		})
	}
}

func TestEvaluateBoolNeverPanics(t *testing.T) {
	evaluator := NewConditionEvaluator()
	variables := map[string]interface{}{"amount": 10}

	// Malformed or unsupported expressions must quietly evaluate to false
	malformed := []string{
		"",
		"context.variables.amount >",
		"context.variables.amount > > 10",
		"((context.variables.amount > 5)",
		"amount > 5",
		"context.variables['unterminated > 1",
		"context.variables.amount + 1 > 2",
		"process.exit(1)",
		"context.variables.amount",
		"'just a string'",
		"context.variables.amount > 'ten'",
	}

	for _, expression := range malformed {
		assert.False(t, evaluator.EvaluateBool(expression, variables), "expression %q", expression)
	}
}

func TestEvaluateIsSideEffectFree(t *testing.T) {
	evaluator := NewConditionEvaluator()
	variables := map[string]interface{}{"amount": 150}

	first := evaluator.EvaluateBool("context.variables.amount > 100", variables)
	second := evaluator.EvaluateBool("context.variables.amount > 100", variables)

	assert.True(t, first)
	assert.Equal(t, first, second)
	assert.Equal(t, map[string]interface{}{"amount": 150}, variables)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("context.variables.amount >")
	require.Error(t, err)

	_, err = Parse("context.variables.amount > 100 garbage")
	require.Error(t, err)

	_, err = Parse("unknownroot.value == 1")
	require.Error(t, err)
}

func TestNumericCoercion(t *testing.T) {
	evaluator := NewConditionEvaluator()

	// Variables arrive as int from Go callers and float64 from JSON
	assert.True(t, evaluator.EvaluateBool("context.variables.n == 5", map[string]interface{}{"n": 5}))
	assert.True(t, evaluator.EvaluateBool("context.variables.n == 5", map[string]interface{}{"n": float64(5)}))
	assert.True(t, evaluator.EvaluateBool("context.variables.n == 5", map[string]interface{}{"n": int64(5)}))
}
