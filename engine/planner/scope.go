package planner

import (
	"github.com/omniql-engine/querycraft/engine/ast"
	"github.com/omniql-engine/querycraft/engine/models"
)

// table is one FROM/JOIN entry
type table struct {
	name   string
	alias  string
	prefix string // path prefix in the working document; empty for the base table
}

func (t *table) ref() string {
	if t.alias != "" {
		return t.alias
	}
	return t.name
}

// scope resolves column references syntactically against the tables of one query
type scope struct {
	pl     *Planner
	tables []*table
	outer  *scope // enclosing query of a subquery, used only for error reporting
	touch  func(models.Field)
}

func (s *scope) find(qualifier string) *table {
	if qualifier == "" {
		return nil
	}
	for _, t := range s.tables {
		if t.alias == qualifier {
			return t
		}
	}
	for _, t := range s.tables {
		if t.name == qualifier {
			return t
		}
	}
	return nil
}

func (s *scope) refs() []string {
	out := make([]string, len(s.tables))
	for i, t := range s.tables {
		out[i] = t.ref()
	}
	return out
}

func (s *scope) resolve(ref *ast.ColumnRef) (models.Field, error) {
	var t *table
	if ref.Table != "" {
		if t = s.find(ref.Table); t == nil {
			if s.outer != nil && s.outer.find(ref.Table) != nil {
				return models.Field{}, unsupported(ref.Position, "correlated subquery")
			}
			return models.Field{}, &UnknownTable{Name: ref.Table, Position: ref.Position}
		}
	} else {
		if len(s.tables) > 1 {
			return models.Field{}, &AmbiguousColumn{Column: ref.Column, Tables: s.refs(), Position: ref.Position}
		}
		t = s.tables[0]
	}
	f := s.field(t, ref.Column)
	if s.touch != nil {
		s.touch(f)
	}
	return f, nil
}

func (s *scope) field(t *table, column string) models.Field {
	path := s.pl.columnPath(column)
	if t.prefix != "" {
		path = t.prefix + "." + path
	}
	return models.Field{Source: t.ref(), Column: column, Path: path}
}

// operands adapts resolve to the expression converter
func (s *scope) operands(ref *ast.ColumnRef) (models.Operand, error) {
	f, err := s.resolve(ref)
	if err != nil {
		return models.Operand{}, err
	}
	return models.FieldRef(f), nil
}
