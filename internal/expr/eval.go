package expr

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/memgrafter/flatagents/pkg/domain"
)

// Scopes are the three roots an expression may reference. Output is any
// because parallel strategies produce structured aggregates, not flat maps.
type Scopes struct {
	Context map[string]any
	Input   map[string]any
	Output  any
}

// Evaluator evaluates expressions under a fixed grammar. It is stateless
// and safe for concurrent use; the grammar is chosen once per machine at
// load time.
type Evaluator struct {
	grammar       Grammar
	strictMissing bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithStrictMissing makes unresolvable paths an error instead of null.
// The template resolver uses this; conditions stay lenient.
func WithStrictMissing() Option {
	return func(e *Evaluator) { e.strictMissing = true }
}

// New creates an evaluator for the given grammar.
func New(g Grammar, opts ...Option) *Evaluator {
	e := &Evaluator{grammar: g}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate parses and evaluates an expression, returning its value.
// Failures are reported as *domain.ExpressionError.
func (e *Evaluator) Evaluate(src string, scopes Scopes) (any, error) {
	n, err := parse(src, e.grammar)
	if err != nil {
		return nil, &domain.ExpressionError{Expr: src, Reason: err.Error()}
	}
	v, err := e.eval(n, scopes)
	if err != nil {
		return nil, &domain.ExpressionError{Expr: src, Reason: err.Error()}
	}
	return v, nil
}

// EvaluateBool evaluates a condition and requires a boolean result.
func (e *Evaluator) EvaluateBool(src string, scopes Scopes) (bool, error) {
	v, err := e.Evaluate(src, scopes)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &domain.ExpressionError{Expr: src, Reason: fmt.Sprintf("condition must be boolean, got %T", v)}
	}
	return b, nil
}

func (e *Evaluator) eval(n node, s Scopes) (any, error) {
	switch t := n.(type) {
	case *litNode:
		return t.val, nil
	case *pathNode:
		return e.resolvePath(t, s)
	case *notNode:
		v, err := e.eval(t.x, s)
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("'not' requires a boolean operand, got %T", v)
		}
		return !b, nil
	case *logicNode:
		l, err := e.eval(t.l, s)
		if err != nil {
			return nil, err
		}
		lb, ok := l.(bool)
		if !ok {
			return nil, fmt.Errorf("logical operand must be boolean, got %T", l)
		}
		// Short-circuit before touching the right-hand side.
		if t.and && !lb {
			return false, nil
		}
		if !t.and && lb {
			return true, nil
		}
		r, err := e.eval(t.r, s)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(bool)
		if !ok {
			return nil, fmt.Errorf("logical operand must be boolean, got %T", r)
		}
		return rb, nil
	case *cmpNode:
		l, err := e.eval(t.l, s)
		if err != nil {
			return nil, err
		}
		r, err := e.eval(t.r, s)
		if err != nil {
			return nil, err
		}
		return compare(t.op, l, r)
	case *callNode:
		return e.evalCall(t, s)
	default:
		return nil, fmt.Errorf("unsupported expression node %T", n)
	}
}

func (e *Evaluator) evalCall(c *callNode, s Scopes) (any, error) {
	args := make([]any, len(c.args))
	for i, a := range c.args {
		v, err := e.eval(a, s)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch c.name {
	case "len":
		switch v := args[0].(type) {
		case string:
			return float64(len(v)), nil
		case []any:
			return float64(len(v)), nil
		case map[string]any:
			return float64(len(v)), nil
		case nil:
			return float64(0), nil
		default:
			return nil, fmt.Errorf("len: unsupported operand %T", v)
		}
	case "contains":
		switch h := args[0].(type) {
		case string:
			n, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("contains: needle must be a string when the haystack is a string")
			}
			return strings.Contains(h, n), nil
		case []any:
			for _, item := range h {
				if looseEqual(item, args[1]) {
					return true, nil
				}
			}
			return false, nil
		case map[string]any:
			k, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("contains: key must be a string when the haystack is a mapping")
			}
			_, exists := h[k]
			return exists, nil
		case nil:
			return false, nil
		default:
			return nil, fmt.Errorf("contains: unsupported haystack %T", h)
		}
	case "startswith", "endswith":
		str, ok1 := args[0].(string)
		prefix, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: both arguments must be strings", c.name)
		}
		if c.name == "startswith" {
			return strings.HasPrefix(str, prefix), nil
		}
		return strings.HasSuffix(str, prefix), nil
	default:
		return nil, fmt.Errorf("function %q is not allowed", c.name)
	}
}

func (e *Evaluator) resolvePath(p *pathNode, s Scopes) (any, error) {
	var cur any
	switch p.root {
	case "context":
		cur = mapOrNil(s.Context)
	case "input":
		cur = mapOrNil(s.Input)
	case "output":
		cur = s.Output
	}
	for _, part := range p.parts {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return e.missing(p, part)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return e.missing(p, part)
			}
			cur = v[idx]
		case nil:
			return e.missing(p, part)
		default:
			return e.missing(p, part)
		}
	}
	return cur, nil
}

// missing applies the lenient null-on-missing rule, or an error under
// strict mode (templates require resolvable references).
func (e *Evaluator) missing(p *pathNode, part string) (any, error) {
	if e.strictMissing {
		return nil, fmt.Errorf("undefined reference %s (at %q)", pathString(p), part)
	}
	return nil, nil
}

func pathString(p *pathNode) string {
	if len(p.parts) == 0 {
		return p.root
	}
	return p.root + "." + strings.Join(p.parts, ".")
}

func mapOrNil(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

// compare implements the shared comparison semantics of both grammars.
// Equality is lenient: numbers compare numerically regardless of Go type,
// null equals only null, and incompatible non-null types are unequal.
// Ordering requires two numbers or two strings; anything else (including
// null operands) is a type error.
func compare(op tokenKind, l, r any) (any, error) {
	switch op {
	case tokEq:
		return looseEqual(l, r), nil
	case tokNe:
		return !looseEqual(l, r), nil
	}

	lf, lIsNum := toFloat(l)
	rf, rIsNum := toFloat(r)
	if lIsNum && rIsNum {
		switch op {
		case tokGt:
			return lf > rf, nil
		case tokGe:
			return lf >= rf, nil
		case tokLt:
			return lf < rf, nil
		case tokLe:
			return lf <= rf, nil
		}
	}

	ls, lIsStr := l.(string)
	rs, rIsStr := r.(string)
	if lIsStr && rIsStr {
		switch op {
		case tokGt:
			return ls > rs, nil
		case tokGe:
			return ls >= rs, nil
		case tokLt:
			return ls < rs, nil
		case tokLe:
			return ls <= rs, nil
		}
	}

	return nil, fmt.Errorf("cannot order %s and %s", typeName(l), typeName(r))
}

// looseEqual compares two JSON-like values with numeric normalization.
func looseEqual(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		return lf == rf
	}
	if lok != rok {
		return false
	}
	return reflect.DeepEqual(l, r)
}

// toFloat normalizes any numeric Go representation (YAML and JSON decoders
// disagree on int vs float64) to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
