// Package query converts raw user search input into literal terms that are
// safe to hand to the full-text engine.
//
// Both index backends are driven by a small query language in which
// characters like '"' and '*' and bare words like AND or NEAR carry
// operator meaning. User input is never trusted to be free of that
// syntax: a query such as `title:secret OR budget` must match the literal
// words, not execute a column filter with a boolean. The sanitizer
// reduces any input to a flat sequence of plain terms; everything the
// engine could interpret as structure is gone by the time a query string
// is built.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeTerm is returned by Check when a term still carries operator
// syntax and must not be sent to the engine.
var ErrUnsafeTerm = errors.New("unsafe search term")

// Syntax describes the operator surface of the underlying full-text
// query language: the characters that carry structural meaning and the
// bare keywords the engine treats as boolean or proximity operators.
// It is immutable configuration; the sanitizer copies it at construction
// so an engine swap means building a new Sanitizer, never mutating a
// shared set.
type Syntax struct {
	// OperatorChars are stripped from input, each replaced by a single
	// space so they act as term separators.
	OperatorChars string

	// Keywords are removed when a token equals one case-insensitively.
	// Matching is whole-token only: NEAR is an operator, NEAR/5 is a
	// literal term.
	Keywords []string
}

// DefaultSyntax returns the syntax understood by both index backends:
// phrase quotes, prefix star, exclusion hyphen, boost caret, column
// filter colon, grouping parentheses, and the boolean/proximity
// keywords. The single quote is included because the SQLite backend
// embeds terms in SQL text.
func DefaultSyntax() Syntax {
	return Syntax{
		OperatorChars: `"'*-^:()`,
		Keywords:      []string{"AND", "OR", "NOT", "NEAR"},
	}
}

// Sanitizer converts raw query strings into ordered lists of literal
// terms. It is a pure value: no I/O, no mutable state, safe for
// concurrent use from any number of goroutines.
type Sanitizer struct {
	strip    map[rune]struct{}
	keywords map[string]struct{} // upper-cased for case-insensitive match
}

// NewSanitizer builds a sanitizer for the given engine syntax.
func NewSanitizer(syntax Syntax) *Sanitizer {
	s := &Sanitizer{
		strip:    make(map[rune]struct{}, len(syntax.OperatorChars)),
		keywords: make(map[string]struct{}, len(syntax.Keywords)),
	}
	for _, r := range syntax.OperatorChars {
		s.strip[r] = struct{}{}
	}
	for _, kw := range syntax.Keywords {
		s.keywords[strings.ToUpper(kw)] = struct{}{}
	}
	return s
}

// Default returns a sanitizer for DefaultSyntax.
func Default() *Sanitizer {
	return NewSanitizer(DefaultSyntax())
}

// Sanitize reduces raw user input to its literal terms, preserving their
// order of appearance and original casing. Operator characters become
// separators rather than being deleted outright: `cats-dogs` yields the
// two terms "cats" and "dogs", never the fused token "catsdogs".
// Operator keywords are dropped only on an exact whole-token match, so
// `cats AND dogs` keeps its animals and `NEAR/5` passes through as a
// literal. Empty input, whitespace-only input, and input consisting
// entirely of operators all yield a nil slice.
func (s *Sanitizer) Sanitize(raw string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if _, strip := s.strip[r]; strip {
			return ' '
		}
		return r
	}, raw)

	// Fields collapses whitespace runs and drops tokens that the
	// character pass reduced to nothing (a lone `*` or `-`).
	var terms []string
	for _, tok := range strings.Fields(cleaned) {
		if _, op := s.keywords[strings.ToUpper(tok)]; op {
			continue
		}
		terms = append(terms, tok)
	}
	return terms
}

// Check re-validates a term list before it is handed to the engine.
// The orchestrator and both backends call this as defense in depth: even
// a caller that bypassed Sanitize cannot smuggle operator syntax into a
// query string. Returns nil for an empty list.
func (s *Sanitizer) Check(terms []string) error {
	for _, t := range terms {
		if t == "" {
			return fmt.Errorf("%w: empty term", ErrUnsafeTerm)
		}
		for _, r := range t {
			if _, strip := s.strip[r]; strip {
				return fmt.Errorf("%w: %q contains operator character %q", ErrUnsafeTerm, t, r)
			}
		}
		if _, op := s.keywords[strings.ToUpper(t)]; op {
			return fmt.Errorf("%w: %q is an operator keyword", ErrUnsafeTerm, t)
		}
	}
	return nil
}
