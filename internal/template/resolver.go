// Package template resolves the input/output field mappings of a state by
// substituting expressions into string or structured templates.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/memgrafter/flatagents/internal/expr"
	"github.com/memgrafter/flatagents/pkg/domain"
)

var placeholder = regexp.MustCompile(`\{\{(.*?)\}\}`)

// Resolver resolves templates against {context, input, output} scopes.
// Unlike condition evaluation, template references are strict: an
// unresolvable path is a TemplateError, not a silent null.
type Resolver struct {
	eval *expr.Evaluator
}

// NewResolver creates a resolver using the given grammar. The grammar must
// match the machine's so templates and conditions agree on syntax.
func NewResolver(g expr.Grammar) *Resolver {
	return &Resolver{eval: expr.New(g, expr.WithStrictMissing())}
}

// Resolve substitutes placeholders in a template value. Strings containing
// "{{ expr }}" placeholders are interpolated; a string that is exactly one
// placeholder yields the expression's native typed value so numbers,
// booleans and objects survive the pipeline. Mappings and lists resolve
// recursively. Other values pass through untouched.
func (r *Resolver) Resolve(tmpl any, scopes expr.Scopes) (any, error) {
	switch t := tmpl.(type) {
	case string:
		return r.resolveString(t, scopes)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := r.Resolve(v, scopes)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := r.Resolve(v, scopes)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return tmpl, nil
	}
}

// ResolveMap resolves every value of a template mapping. All values see the
// same scopes snapshot; a state's output_to_context batch therefore never
// observes keys written earlier in the same batch.
func (r *Resolver) ResolveMap(tmpl map[string]any, scopes expr.Scopes) (map[string]any, error) {
	v, err := r.Resolve(tmpl, scopes)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return m, nil
}

func (r *Resolver) resolveString(s string, scopes expr.Scopes) (any, error) {
	matches := placeholder.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// A template that is exactly one placeholder returns the native value.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return r.evalPlaceholder(s, s[matches[0][2]:matches[0][3]], scopes)
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		v, err := r.evalPlaceholder(s, s[m[2]:m[3]], scopes)
		if err != nil {
			return nil, err
		}
		sb.WriteString(coerceString(v))
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String(), nil
}

func (r *Resolver) evalPlaceholder(tmpl, inner string, scopes expr.Scopes) (any, error) {
	v, err := r.eval.Evaluate(strings.TrimSpace(inner), scopes)
	if err != nil {
		var exprErr *domain.ExpressionError
		if errors.As(err, &exprErr) {
			return nil, &domain.TemplateError{Template: tmpl, Reason: exprErr.Reason}
		}
		return nil, &domain.TemplateError{Template: tmpl, Reason: err.Error()}
	}
	return v, nil
}

// coerceString renders a value for interpolation into a larger string.
// Integral floats print without a decimal point so YAML-sourced ints round-trip.
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}
