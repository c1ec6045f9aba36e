// Package expr parses and evaluates the condition expressions of a machine
// definition. Expressions originate from user-authored configuration, so
// evaluation is a security boundary: there is no assignment, no I/O and no
// function call outside a small allow-list of pure predicates.
//
// Two grammars are available. The minimal grammar covers dotted field
// access, comparison operators and the and/or/not connectives. The extended
// grammar additionally accepts the &&/||/! spellings and the predicates
// len, contains, startswith and endswith. The semantics of the shared
// subset are identical between grammars (covered by a differential test).
package expr
