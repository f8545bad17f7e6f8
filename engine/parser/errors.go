package parser

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/querycraft/engine/lexer"
)

// ParseError reports malformed input: what the grammar expected at a position
// and what it found instead.
type ParseError struct {
	Position   int
	Line       int
	Column     int
	Expected   []string
	Found      string
	Suggestion string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error at line %d, column %d: expected %s, found %s",
		e.Line, e.Column, joinExpected(e.Expected), e.Found)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(". Did you mean '%s'?", e.Suggestion)
	}
	return msg
}

// UnsupportedFeature reports valid SQL that is outside the translatable subset
type UnsupportedFeature struct {
	Feature  string
	Position int
	Line     int
	Column   int
}

func (e *UnsupportedFeature) Error() string {
	if e.Line == 0 {
		return "unsupported feature: " + e.Feature
	}
	return fmt.Sprintf("unsupported feature at line %d, column %d: %s", e.Line, e.Column, e.Feature)
}

func joinExpected(expected []string) string {
	switch len(expected) {
	case 0:
		return "nothing"
	case 1:
		return expected[0]
	}
	return "one of " + strings.Join(expected, ", ")
}

// NewParseError builds a ParseError at tok
func NewParseError(tok lexer.Token, expected ...string) *ParseError {
	return &ParseError{
		Position: tok.Position,
		Line:     tok.Line,
		Column:   tok.Column,
		Expected: expected,
		Found:    tok.Display(),
	}
}

// NewUnsupported builds an UnsupportedFeature at tok
func NewUnsupported(tok lexer.Token, feature string) *UnsupportedFeature {
	return &UnsupportedFeature{
		Feature:  feature,
		Position: tok.Position,
		Line:     tok.Line,
		Column:   tok.Column,
	}
}
