package planner

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/querycraft/engine/parser"
)

// AmbiguousColumn reports an unqualified column while several tables are in scope
type AmbiguousColumn struct {
	Column   string
	Tables   []string
	Position int
	Line     int
	Col      int
}

func (e *AmbiguousColumn) Error() string {
	return fmt.Sprintf("ambiguous column %q%s: qualify it with one of %s",
		e.Column, at(e.Line, e.Col), strings.Join(e.Tables, ", "))
}

// UnknownTable reports a qualifier that names no table or alias in scope
type UnknownTable struct {
	Name     string
	Position int
	Line     int
	Col      int
}

func (e *UnknownTable) Error() string {
	return fmt.Sprintf("unknown table or alias %q%s", e.Name, at(e.Line, e.Col))
}

func at(line, col int) string {
	if line == 0 {
		return ""
	}
	return fmt.Sprintf(" at line %d, column %d", line, col)
}

func unsupported(pos int, feature string) error {
	return &parser.UnsupportedFeature{Feature: feature, Position: pos}
}
