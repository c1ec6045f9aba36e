package expr

import (
	"fmt"

	"github.com/memgrafter/flatagents/pkg/domain"
)

// Grammar selects the accepted expression syntax.
type Grammar int

const (
	// Minimal accepts field access, comparisons, literals and the keyword
	// connectives and/or/not.
	Minimal Grammar = iota
	// Extended accepts everything Minimal does, plus &&/||/! and the
	// allow-listed predicates len, contains, startswith, endswith.
	Extended
)

// ParseGrammar maps the machine-settings grammar name to a Grammar.
func ParseGrammar(name string) (Grammar, error) {
	switch name {
	case "", domain.GrammarMinimal:
		return Minimal, nil
	case domain.GrammarExtended:
		return Extended, nil
	default:
		return 0, fmt.Errorf("unknown expression grammar %q", name)
	}
}

// allowedCalls is the closed set of pure predicates the extended grammar
// may invoke. Nothing here can mutate scopes or perform I/O.
var allowedCalls = map[string]int{
	"len":        1,
	"contains":   2,
	"startswith": 2,
	"endswith":   2,
}

type node interface{}

type litNode struct{ val any }

type pathNode struct {
	root  string // context, input or output
	parts []string
}

type cmpNode struct {
	op   tokenKind
	l, r node
}

type logicNode struct {
	and  bool
	l, r node
}

type notNode struct{ x node }

type callNode struct {
	name string
	args []node
}

type parser struct {
	toks    []token
	pos     int
	grammar Grammar
	src     string
}

func parse(src string, g Grammar) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, grammar: g, src: src}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.peek().text, p.peek().pos)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		isOr := t.kind == tokIdent && t.text == "or" || t.kind == tokOr
		if !isOr {
			return l, nil
		}
		if t.kind == tokOr && p.grammar == Minimal {
			return nil, fmt.Errorf("operator %q requires the extended grammar", t.text)
		}
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &logicNode{and: false, l: l, r: r}
	}
}

func (p *parser) parseAnd() (node, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		isAnd := t.kind == tokIdent && t.text == "and" || t.kind == tokAnd
		if !isAnd {
			return l, nil
		}
		if t.kind == tokAnd && p.grammar == Minimal {
			return nil, fmt.Errorf("operator %q requires the extended grammar", t.text)
		}
		p.next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &logicNode{and: true, l: l, r: r}
	}
}

func (p *parser) parseNot() (node, error) {
	t := p.peek()
	if t.kind == tokIdent && t.text == "not" || t.kind == tokNot {
		if t.kind == tokNot && p.grammar == Minimal {
			return nil, fmt.Errorf("operator %q requires the extended grammar", t.text)
		}
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{x: x}, nil
	}
	return p.parseComparison()
}

// parseComparison is non-associative: "a == b == c" is a syntax error.
func (p *parser) parseComparison() (node, error) {
	l, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	switch p.peek().kind {
	case tokEq, tokNe, tokGe, tokLe, tokGt, tokLt:
		op := p.next().kind
		r, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &cmpNode{op: op, l: l, r: r}, nil
	}
	return l, nil
}

func (p *parser) parsePrimary() (node, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at offset %d", p.peek().pos)
		}
		p.next()
		return n, nil
	case tokNumber:
		p.next()
		return &litNode{val: t.num}, nil
	case tokString:
		p.next()
		return &litNode{val: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			p.next()
			return &litNode{val: true}, nil
		case "false":
			p.next()
			return &litNode{val: false}, nil
		case "null":
			p.next()
			return &litNode{val: nil}, nil
		}
		if p.toks[p.pos+1].kind == tokLParen {
			return p.parseCall()
		}
		return p.parsePath()
	default:
		return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
	}
}

func (p *parser) parseCall() (node, error) {
	name := p.next().text
	if p.grammar == Minimal {
		return nil, fmt.Errorf("function calls require the extended grammar")
	}
	arity, ok := allowedCalls[name]
	if !ok {
		return nil, fmt.Errorf("function %q is not allowed", name)
	}
	p.next() // (
	var args []node
	if p.peek().kind != tokRParen {
		for {
			a, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if p.peek().kind != tokRParen {
		return nil, fmt.Errorf("expected ')' at offset %d", p.peek().pos)
	}
	p.next()
	if len(args) != arity {
		return nil, fmt.Errorf("function %q expects %d argument(s), got %d", name, arity, len(args))
	}
	return &callNode{name: name, args: args}, nil
}

func (p *parser) parsePath() (node, error) {
	root := p.next().text
	if root != "context" && root != "input" && root != "output" {
		return nil, fmt.Errorf("unknown scope %q (paths must be rooted at context, input or output)", root)
	}
	var parts []string
	for p.peek().kind == tokDot {
		p.next()
		t := p.peek()
		switch t.kind {
		case tokIdent:
			parts = append(parts, t.text)
			p.next()
		case tokNumber:
			// List index segment, e.g. output.results.0
			parts = append(parts, t.text)
			p.next()
		default:
			return nil, fmt.Errorf("expected field name after '.' at offset %d", t.pos)
		}
	}
	return &pathNode{root: root, parts: parts}, nil
}
