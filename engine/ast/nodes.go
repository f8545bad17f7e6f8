package ast

import (
	"strings"
)

// Node is the interface all AST nodes implement
type Node interface {
	node()
	Pos() int
}

// Statement is the root of one parsed query
type Statement interface {
	Node
	statement()
}

// Expr is any value or predicate expression
type Expr interface {
	Node
	expr()
	String() string
}

// =============================================================================
// STATEMENTS
// =============================================================================

// SelectStatement represents SELECT ... FROM ... (one level of IN-subquery allowed)
type SelectStatement struct {
	Distinct bool
	Items    []SelectItem
	From     TableRef
	Joins    []JoinClause
	Where    Expr
	GroupBy  *GroupByClause
	Having   Expr
	OrderBy  *OrderByClause
	Limit    *int64
	Offset   *int64
	Position int
}

func (n *SelectStatement) node()      {}
func (n *SelectStatement) statement() {}
func (n *SelectStatement) Pos() int   { return n.Position }

// InsertStatement represents INSERT INTO t (cols) VALUES (...), (...)
type InsertStatement struct {
	Table    TableRef
	Columns  []string
	Rows     [][]Expr
	Position int
}

func (n *InsertStatement) node()      {}
func (n *InsertStatement) statement() {}
func (n *InsertStatement) Pos() int   { return n.Position }

// UpdateStatement represents UPDATE t SET col = expr, ... [WHERE ...]
type UpdateStatement struct {
	Table       TableRef
	Assignments []Assignment
	Where       Expr
	Position    int
}

func (n *UpdateStatement) node()      {}
func (n *UpdateStatement) statement() {}
func (n *UpdateStatement) Pos() int   { return n.Position }

// DeleteStatement represents DELETE FROM t [WHERE ...]
type DeleteStatement struct {
	Table    TableRef
	Where    Expr
	Position int
}

func (n *DeleteStatement) node()      {}
func (n *DeleteStatement) statement() {}
func (n *DeleteStatement) Pos() int   { return n.Position }

// =============================================================================
// CLAUSES
// =============================================================================

// SelectItem is one entry of the select list. Star with an empty StarTable is
// a bare '*'; StarTable set means "t.*".
type SelectItem struct {
	Star      bool
	StarTable string
	Expr      Expr
	Alias     string
	Position  int
}

// TableRef is a table name with optional alias
type TableRef struct {
	Name     string
	Alias    string
	Position int
}

// Ref returns the name the table is referred to by in the query
func (t TableRef) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// JoinKind is INNER or LEFT
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
)

func (k JoinKind) String() string {
	if k == JoinLeft {
		return "LEFT"
	}
	return "INNER"
}

// JoinClause represents [INNER | LEFT] JOIN t ON a.x = b.y [AND ...]
type JoinClause struct {
	Kind     JoinKind
	Table    TableRef
	On       []JoinCondition
	Position int
}

func (n *JoinClause) node()    {}
func (n *JoinClause) Pos() int { return n.Position }

// JoinCondition is one column equality of an ON predicate
type JoinCondition struct {
	Left  *ColumnRef
	Right *ColumnRef
}

// GroupByClause represents GROUP BY col, ...
type GroupByClause struct {
	Keys     []*ColumnRef
	Position int
}

func (n *GroupByClause) node()    {}
func (n *GroupByClause) Pos() int { return n.Position }

// OrderByClause represents ORDER BY expr [ASC|DESC], ...
type OrderByClause struct {
	Items    []OrderItem
	Position int
}

func (n *OrderByClause) node()    {}
func (n *OrderByClause) Pos() int { return n.Position }

// OrderItem is one sort key
type OrderItem struct {
	Expr Expr
	Desc bool
}

// Assignment is one SET col = expr pair
type Assignment struct {
	Column   string
	Value    Expr
	Position int
}

// =============================================================================
// EXPRESSIONS
// =============================================================================

// ColumnRef is a possibly qualified column name
type ColumnRef struct {
	Table    string
	Column   string
	Position int
}

func (n *ColumnRef) node()    {}
func (n *ColumnRef) expr()    {}
func (n *ColumnRef) Pos() int { return n.Position }
func (n *ColumnRef) String() string {
	if n.Table != "" {
		return n.Table + "." + n.Column
	}
	return n.Column
}

// LiteralKind classifies a literal
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralNull
)

// Literal is a constant; Value holds the source text (TRUE/FALSE for booleans)
type Literal struct {
	Kind     LiteralKind
	Value    string
	Position int
}

func (n *Literal) node()    {}
func (n *Literal) expr()    {}
func (n *Literal) Pos() int { return n.Position }
func (n *Literal) String() string {
	switch n.Kind {
	case LiteralString:
		return "'" + strings.ReplaceAll(n.Value, "'", "''") + "'"
	case LiteralNull:
		return "NULL"
	default:
		return n.Value
	}
}

// FuncCall is a scalar function call; Name is upper-cased
type FuncCall struct {
	Name     string
	Args     []Expr
	Position int
}

func (n *FuncCall) node()    {}
func (n *FuncCall) expr()    {}
func (n *FuncCall) Pos() int { return n.Position }
func (n *FuncCall) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

// AggregateCall is COUNT/SUM/AVG/MAX/MIN; Star only for COUNT(*)
type AggregateCall struct {
	Func     string
	Star     bool
	Arg      Expr
	Position int
}

func (n *AggregateCall) node()    {}
func (n *AggregateCall) expr()    {}
func (n *AggregateCall) Pos() int { return n.Position }
func (n *AggregateCall) String() string {
	if n.Star {
		return n.Func + "(*)"
	}
	return n.Func + "(" + n.Arg.String() + ")"
}

// IntervalExpr is INTERVAL n UNIT, only valid as a DATE_ADD/DATE_SUB argument
type IntervalExpr struct {
	Value    Expr
	Unit     string
	Position int
}

func (n *IntervalExpr) node()    {}
func (n *IntervalExpr) expr()    {}
func (n *IntervalExpr) Pos() int { return n.Position }
func (n *IntervalExpr) String() string {
	return "INTERVAL " + n.Value.String() + " " + n.Unit
}

// BinaryExpr covers comparisons (= <> != < > <= >=), arithmetic and AND/OR
type BinaryExpr struct {
	Op       string
	Left     Expr
	Right    Expr
	Position int
}

func (n *BinaryExpr) node()    {}
func (n *BinaryExpr) expr()    {}
func (n *BinaryExpr) Pos() int { return n.Position }
func (n *BinaryExpr) String() string {
	return "(" + n.Left.String() + " " + n.Op + " " + n.Right.String() + ")"
}

// IsLogical reports AND/OR
func (n *BinaryExpr) IsLogical() bool {
	return n.Op == "AND" || n.Op == "OR"
}

// IsComparison reports = <> != < > <= >=
func (n *BinaryExpr) IsComparison() bool {
	switch n.Op {
	case "=", "<>", "!=", "<", ">", "<=", ">=":
		return true
	}
	return false
}

// UnaryExpr is NOT expr or -expr
type UnaryExpr struct {
	Op       string
	Operand  Expr
	Position int
}

func (n *UnaryExpr) node()    {}
func (n *UnaryExpr) expr()    {}
func (n *UnaryExpr) Pos() int { return n.Position }
func (n *UnaryExpr) String() string {
	if n.Op == "NOT" {
		return "NOT " + n.Operand.String()
	}
	return n.Op + n.Operand.String()
}

// InExpr is expr [NOT] IN (list) or expr [NOT] IN (subquery)
type InExpr struct {
	Expr     Expr
	List     []Expr
	Subquery *Subquery
	Not      bool
	Position int
}

func (n *InExpr) node()    {}
func (n *InExpr) expr()    {}
func (n *InExpr) Pos() int { return n.Position }
func (n *InExpr) String() string {
	op := " IN "
	if n.Not {
		op = " NOT IN "
	}
	if n.Subquery != nil {
		return n.Expr.String() + op + "(SELECT ...)"
	}
	items := make([]string, len(n.List))
	for i, e := range n.List {
		items[i] = e.String()
	}
	return n.Expr.String() + op + "(" + strings.Join(items, ", ") + ")"
}

// Subquery wraps the single nested SELECT allowed inside IN
type Subquery struct {
	Select   *SelectStatement
	Position int
}

func (n *Subquery) node()    {}
func (n *Subquery) Pos() int { return n.Position }

// LikeExpr is expr [NOT] LIKE 'pattern'
type LikeExpr struct {
	Expr     Expr
	Pattern  string
	Not      bool
	Position int
}

func (n *LikeExpr) node()    {}
func (n *LikeExpr) expr()    {}
func (n *LikeExpr) Pos() int { return n.Position }
func (n *LikeExpr) String() string {
	op := " LIKE "
	if n.Not {
		op = " NOT LIKE "
	}
	return n.Expr.String() + op + "'" + strings.ReplaceAll(n.Pattern, "'", "''") + "'"
}

// BetweenExpr is expr [NOT] BETWEEN low AND high
type BetweenExpr struct {
	Expr     Expr
	Low      Expr
	High     Expr
	Not      bool
	Position int
}

func (n *BetweenExpr) node()    {}
func (n *BetweenExpr) expr()    {}
func (n *BetweenExpr) Pos() int { return n.Position }
func (n *BetweenExpr) String() string {
	op := " BETWEEN "
	if n.Not {
		op = " NOT BETWEEN "
	}
	return n.Expr.String() + op + n.Low.String() + " AND " + n.High.String()
}

// IsNullExpr is expr IS [NOT] NULL
type IsNullExpr struct {
	Expr     Expr
	Not      bool
	Position int
}

func (n *IsNullExpr) node()    {}
func (n *IsNullExpr) expr()    {}
func (n *IsNullExpr) Pos() int { return n.Position }
func (n *IsNullExpr) String() string {
	if n.Not {
		return n.Expr.String() + " IS NOT NULL"
	}
	return n.Expr.String() + " IS NULL"
}

// Walk calls fn for e and every sub-expression, depth first. Subquery bodies
// are not entered. Returning false from fn skips the node's children.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *FuncCall:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *AggregateCall:
		Walk(n.Arg, fn)
	case *IntervalExpr:
		Walk(n.Value, fn)
	case *BinaryExpr:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *UnaryExpr:
		Walk(n.Operand, fn)
	case *InExpr:
		Walk(n.Expr, fn)
		for _, item := range n.List {
			Walk(item, fn)
		}
	case *LikeExpr:
		Walk(n.Expr, fn)
	case *BetweenExpr:
		Walk(n.Expr, fn)
		Walk(n.Low, fn)
		Walk(n.High, fn)
	case *IsNullExpr:
		Walk(n.Expr, fn)
	}
}
