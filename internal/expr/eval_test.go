package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgrafter/flatagents/pkg/domain"
)

func scopes() Scopes {
	return Scopes{
		Context: map[string]any{
			"count":  3,
			"name":   "alice",
			"ready":  true,
			"nested": map[string]any{"deep": "value"},
			"items":  []any{"a", "b", "c"},
		},
		Input: map[string]any{
			"threshold": 2.5,
			"word":      "Hi",
		},
		Output: map[string]any{
			"answer": float64(42),
			"tags":   []any{"x", "y"},
		},
	}
}

func TestEvaluateBool_MinimalGrammar(t *testing.T) {
	e := New(Minimal)

	cases := []struct {
		expr string
		want bool
	}{
		{"context.count == 3", true},
		{"context.count != 3", false},
		{"context.count > input.threshold", true},
		{"context.count <= 3", true},
		{"context.name == 'alice'", true},
		{`context.name == "alice"`, true},
		{"context.ready", true},
		{"not context.ready", false},
		{"context.ready and context.count > 1", true},
		{"context.ready and context.count > 5", false},
		{"context.count > 5 or context.name == 'alice'", true},
		{"context.nested.deep == 'value'", true},
		{"output.answer == 42", true},
		{"context.missing == null", true},
		{"context.missing != null", false},
		{"(context.count > 1 and context.count < 5) or not context.ready", true},
	}
	for _, tc := range cases {
		got, err := e.EvaluateBool(tc.expr, scopes())
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestEvaluateBool_ExtendedGrammar(t *testing.T) {
	e := New(Extended)

	cases := []struct {
		expr string
		want bool
	}{
		{"context.ready && context.count > 1", true},
		{"context.count > 5 || context.ready", true},
		{"!context.ready", false},
		{"len(context.name) == 5", true},
		{"len(context.items) == 3", true},
		{"len(context.missing) == 0", true},
		{"contains(context.name, 'lic')", true},
		{"contains(context.items, 'b')", true},
		{"contains(context.nested, 'deep')", true},
		{"startswith(context.name, 'al')", true},
		{"endswith(context.name, 'ce')", true},
		{"endswith(context.name, 'al')", false},
		{"not contains(context.items, 'z')", true},
	}
	for _, tc := range cases {
		got, err := e.EvaluateBool(tc.expr, scopes())
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

// Both grammars must agree on the shared core subset.
func TestGrammars_SharedSubsetAgrees(t *testing.T) {
	shared := []string{
		"context.count == 3",
		"context.count >= input.threshold",
		"context.name != 'bob'",
		"context.ready and not (context.count < 0)",
		"context.missing == null or context.ready",
	}
	minimal := New(Minimal)
	extended := New(Extended)
	for _, src := range shared {
		a, errA := minimal.EvaluateBool(src, scopes())
		b, errB := extended.EvaluateBool(src, scopes())
		require.NoError(t, errA, src)
		require.NoError(t, errB, src)
		assert.Equal(t, a, b, src)
	}
}

func TestMinimalGrammar_RejectsExtendedSyntax(t *testing.T) {
	e := New(Minimal)
	for _, src := range []string{
		"context.ready && true",
		"context.ready || true",
		"!context.ready",
		"len(context.name) > 0",
		"contains(context.name, 'a')",
	} {
		_, err := e.EvaluateBool(src, scopes())
		require.Error(t, err, src)
		var exprErr *domain.ExpressionError
		assert.ErrorAs(t, err, &exprErr, src)
	}
}

func TestExtendedGrammar_RejectsUnknownFunctions(t *testing.T) {
	e := New(Extended)
	for _, src := range []string{
		"exec(context.name)",
		"lower(context.name) == 'alice'",
		"len(context.name, context.items) > 0",
	} {
		_, err := e.Evaluate(src, scopes())
		assert.Error(t, err, src)
	}
}

func TestEvaluate_SyntaxErrors(t *testing.T) {
	e := New(Extended)
	for _, src := range []string{
		"context.count = 3",
		"context.count == 3 == true",
		"context.count >",
		"(context.count > 1",
		"secrets.token == 'x'",
		"context.count +",
	} {
		_, err := e.Evaluate(src, scopes())
		require.Error(t, err, src)
		var exprErr *domain.ExpressionError
		assert.ErrorAs(t, err, &exprErr, src)
	}
}

func TestEvaluate_MissingPathsAreNull(t *testing.T) {
	e := New(Minimal)

	v, err := e.Evaluate("context.missing", scopes())
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = e.Evaluate("context.nested.absent", scopes())
	require.NoError(t, err)
	assert.Nil(t, v)

	// Null never equals a concrete value.
	got, err := e.EvaluateBool("context.missing == 0", scopes())
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluate_StrictMissing(t *testing.T) {
	e := New(Minimal, WithStrictMissing())
	_, err := e.Evaluate("context.missing", scopes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined reference")
}

func TestEvaluate_ListIndexing(t *testing.T) {
	e := New(Minimal)

	v, err := e.Evaluate("context.items.1", scopes())
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	v, err = e.Evaluate("context.items.9", scopes())
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEvaluateBool_OrderingTypeErrors(t *testing.T) {
	e := New(Minimal)
	for _, src := range []string{
		"context.name > 3",
		"context.missing > 1",
		"context.ready > false",
	} {
		_, err := e.EvaluateBool(src, scopes())
		assert.Error(t, err, src)
	}
}

func TestEvaluateBool_NonBooleanCondition(t *testing.T) {
	e := New(Minimal)
	_, err := e.EvaluateBool("context.count", scopes())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "condition must be boolean")
}

func TestEvaluate_ShortCircuit(t *testing.T) {
	e := New(Minimal)

	// The right-hand side would be a type error, but the left decides.
	got, err := e.EvaluateBool("false and context.name > 3", scopes())
	require.NoError(t, err)
	assert.False(t, got)

	got, err = e.EvaluateBool("true or context.name > 3", scopes())
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCompare_NumericNormalization(t *testing.T) {
	// YAML decodes ints, JSON decodes float64; equality must not care.
	assert.True(t, looseEqual(3, float64(3)))
	assert.True(t, looseEqual(int64(7), 7))
	assert.False(t, looseEqual(3, "3"))
	assert.False(t, looseEqual(nil, 0))
	assert.True(t, looseEqual(nil, nil))
	assert.True(t, looseEqual([]any{"a"}, []any{"a"}))
}

func TestParseGrammar(t *testing.T) {
	g, err := ParseGrammar("")
	require.NoError(t, err)
	assert.Equal(t, Minimal, g)

	g, err = ParseGrammar(domain.GrammarExtended)
	require.NoError(t, err)
	assert.Equal(t, Extended, g)

	_, err = ParseGrammar("cel")
	assert.Error(t, err)
}
