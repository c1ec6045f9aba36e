package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgrafter/flatagents/internal/expr"
	"github.com/memgrafter/flatagents/pkg/domain"
)

func testScopes() expr.Scopes {
	return expr.Scopes{
		Context: map[string]any{
			"name":  "alice",
			"count": 3,
			"obj":   map[string]any{"k": "v"},
		},
		Input: map[string]any{
			"word": "Hi",
			"rate": 2.5,
		},
		Output: map[string]any{
			"answer": float64(42),
		},
	}
}

func TestResolve_Interpolation(t *testing.T) {
	r := NewResolver(expr.Minimal)

	v, err := r.Resolve("hello {{ context.name }}!", testScopes())
	require.NoError(t, err)
	assert.Equal(t, "hello alice!", v)

	v, err = r.Resolve("{{ context.name }} has {{ context.count }} items", testScopes())
	require.NoError(t, err)
	assert.Equal(t, "alice has 3 items", v)
}

// A template that is exactly one placeholder yields the native typed value,
// not its string rendering.
func TestResolve_SinglePlaceholderKeepsType(t *testing.T) {
	r := NewResolver(expr.Minimal)

	v, err := r.Resolve("{{ context.count }}", testScopes())
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = r.Resolve("{{ input.rate }}", testScopes())
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = r.Resolve("{{ context.obj }}", testScopes())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, v)

	v, err = r.Resolve("{{ context.count == 3 }}", testScopes())
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestResolve_PlainValuesPassThrough(t *testing.T) {
	r := NewResolver(expr.Minimal)

	v, err := r.Resolve("no placeholders here", testScopes())
	require.NoError(t, err)
	assert.Equal(t, "no placeholders here", v)

	v, err = r.Resolve(7, testScopes())
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = r.Resolve(true, testScopes())
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestResolve_RecursesIntoStructures(t *testing.T) {
	r := NewResolver(expr.Minimal)

	tmpl := map[string]any{
		"greeting": "hi {{ context.name }}",
		"nested": map[string]any{
			"count": "{{ context.count }}",
		},
		"list": []any{"{{ input.word }}", "static", "{{ output.answer }}"},
	}
	v, err := r.Resolve(tmpl, testScopes())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"greeting": "hi alice",
		"nested":   map[string]any{"count": 3},
		"list":     []any{"Hi", "static", float64(42)},
	}, v)
}

// Template references are strict: a missing path fails the resolution
// instead of interpolating an empty string.
func TestResolve_MissingReferenceIsTemplateError(t *testing.T) {
	r := NewResolver(expr.Minimal)

	_, err := r.Resolve("{{ context.absent }}", testScopes())
	require.Error(t, err)
	var tmplErr *domain.TemplateError
	require.ErrorAs(t, err, &tmplErr)
	assert.Equal(t, domain.KindTemplate, domain.KindOf(err))
}

func TestResolve_MalformedExpressionIsTemplateError(t *testing.T) {
	r := NewResolver(expr.Minimal)

	_, err := r.Resolve("value: {{ context.count > }}", testScopes())
	require.Error(t, err)
	var tmplErr *domain.TemplateError
	assert.ErrorAs(t, err, &tmplErr)
}

func TestResolveMap(t *testing.T) {
	r := NewResolver(expr.Minimal)

	out, err := r.ResolveMap(map[string]any{
		"a": "{{ context.name }}",
		"b": "{{ context.count }}",
	}, testScopes())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "alice", "b": 3}, out)

	out, err = r.ResolveMap(nil, testScopes())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCoerceString(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"s", "s"},
		{true, "true"},
		{float64(3), "3"},
		{float64(3.5), "3.5"},
		{42, "42"},
		{int64(-1), "-1"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, coerceString(tc.in))
	}
}
