package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokDot
	tokComma
	tokLParen
	tokRParen
	tokEq  // ==
	tokNe  // !=
	tokGe  // >=
	tokLe  // <=
	tokGt  // >
	tokLt  // <
	tokAnd // &&
	tokOr  // ||
	tokNot // !
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// lex tokenizes an expression. Symbolic connectives (&&, ||, !) are lexed
// unconditionally; the parser rejects them under the minimal grammar so the
// error can name the construct.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case c == '.':
			toks = append(toks, token{kind: tokDot, text: ".", pos: i})
			i++
		case c == '=':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tokEq, text: "==", pos: i})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected '=' at offset %d (assignment is not allowed)", i)
			}
		case c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tokNe, text: "!=", pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: tokNot, text: "!", pos: i})
				i++
			}
		case c == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tokGe, text: ">=", pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: tokGt, text: ">", pos: i})
				i++
			}
		case c == '<':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{kind: tokLe, text: "<=", pos: i})
				i += 2
			} else {
				toks = append(toks, token{kind: tokLt, text: "<", pos: i})
				i++
			}
		case c == '&':
			if i+1 < len(src) && src[i+1] == '&' {
				toks = append(toks, token{kind: tokAnd, text: "&&", pos: i})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected '&' at offset %d", i)
			}
		case c == '|':
			if i+1 < len(src) && src[i+1] == '|' {
				toks = append(toks, token{kind: tokOr, text: "||", pos: i})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected '|' at offset %d", i)
			}
		case c == '\'' || c == '"':
			lit, rest, err := lexString(src[i:])
			if err != nil {
				return nil, fmt.Errorf("%v at offset %d", err, i)
			}
			toks = append(toks, token{kind: tokString, text: lit, pos: i})
			i += rest
		case c >= '0' && c <= '9':
			j := i
			seenDot := false
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.' && !seenDot) {
				if src[j] == '.' {
					// A trailing dot belongs to the number only if a digit follows.
					if j+1 >= len(src) || src[j+1] < '0' || src[j+1] > '9' {
						break
					}
					seenDot = true
				}
				j++
			}
			num, err := strconv.ParseFloat(src[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q at offset %d", src[i:j], i)
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j], num: num, pos: i})
			i = j
		case isIdentStart(rune(c)):
			j := i
			for j < len(src) && isIdentPart(rune(src[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: i})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// lexString reads a quoted literal starting at src[0] and returns the
// unquoted value and the number of bytes consumed.
func lexString(src string) (string, int, error) {
	quote := src[0]
	var sb strings.Builder
	i := 1
	for i < len(src) {
		c := src[i]
		if c == '\\' && i+1 < len(src) {
			next := src[i+1]
			switch next {
			case '\\', quote:
				sb.WriteByte(next)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(next)
			}
			i += 2
			continue
		}
		if c == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(c)
		i++
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
