package planner

import (
	"strconv"
	"strings"

	"github.com/omniql-engine/querycraft/engine/ast"
	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/mapping"
)

// exprCtx configures expression conversion for one clause
type exprCtx struct {
	clause    string // used in error messages
	column    func(*ast.ColumnRef) (models.Operand, error)
	aggregate func(*ast.AggregateCall) (models.Operand, error) // nil: aggregates rejected
	subquery  func(*ast.InExpr) (*models.Predicate, error)     // nil: subqueries rejected
}

// =============================================================================
// VALUES
// =============================================================================

func (pl *Planner) operand(e ast.Expr, c *exprCtx) (models.Operand, error) {
	switch n := e.(type) {
	case *ast.ColumnRef:
		return c.column(n)
	case *ast.Literal:
		return literal(n)
	case *ast.FuncCall:
		return pl.call(n, c)
	case *ast.AggregateCall:
		if c.aggregate == nil {
			return models.Operand{}, unsupported(n.Position, "aggregate function in "+c.clause)
		}
		return c.aggregate(n)
	case *ast.BinaryExpr:
		if _, ok := mapping.ArithmeticOperators[n.Op]; ok {
			l, err := pl.operand(n.Left, c)
			if err != nil {
				return models.Operand{}, err
			}
			r, err := pl.operand(n.Right, c)
			if err != nil {
				return models.Operand{}, err
			}
			return models.Arith(n.Op, l, r), nil
		}
	case *ast.UnaryExpr:
		if n.Op == "-" {
			v, err := pl.operand(n.Operand, c)
			if err != nil {
				return models.Operand{}, err
			}
			return models.Arith("*", models.Literal(int64(-1)), v), nil
		}
	case *ast.IntervalExpr:
		return models.Operand{}, unsupported(n.Position, "INTERVAL outside DATE_ADD/DATE_SUB")
	}
	return models.Operand{}, unsupported(e.Pos(), "condition used as a value in "+c.clause)
}

func literal(n *ast.Literal) (models.Operand, error) {
	switch n.Kind {
	case ast.LiteralString:
		return models.Literal(n.Value), nil
	case ast.LiteralBool:
		return models.Literal(n.Value == "TRUE"), nil
	case ast.LiteralNull:
		return models.Literal(nil), nil
	}
	if i, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
		return models.Literal(i), nil
	}
	// integers beyond int64 are not rounded to a double
	if !strings.ContainsAny(n.Value, ".eE") {
		return models.Operand{}, unsupported(n.Position, "integer literal "+n.Value+" outside the 64-bit range")
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return models.Operand{}, unsupported(n.Position, "numeric literal "+n.Value+" outside the double range")
	}
	return models.Literal(f), nil
}

func (pl *Planner) call(n *ast.FuncCall, c *exprCtx) (models.Operand, error) {
	fn := mapping.ScalarFunctions[n.Name]
	if fn.Date {
		return dateOf(n)
	}
	op := models.Operand{Kind: models.OperandFunc, Op: fn.Operator, Func: n.Name}
	for _, a := range n.Args {
		v, err := pl.operand(a, c)
		if err != nil {
			return models.Operand{}, err
		}
		op.Args = append(op.Args, v)
	}
	return op, nil
}

// dateOf folds NOW()/CURRENT_DATE and DATE_ADD/DATE_SUB chains into one offset
func dateOf(n *ast.FuncCall) (models.Operand, error) {
	switch n.Name {
	case "NOW", "CURRENT_TIMESTAMP":
		return models.Date(models.DateValue{}), nil
	case "CURRENT_DATE":
		return models.Date(models.DateValue{DayStart: true}), nil
	}

	base, ok := n.Args[0].(*ast.FuncCall)
	if !ok || !mapping.ScalarFunctions[base.Name].Date {
		return models.Operand{}, unsupported(n.Position, n.Name+" on a column")
	}
	d, err := dateOf(base)
	if err != nil {
		return models.Operand{}, err
	}

	iv := n.Args[1].(*ast.IntervalExpr)
	lit, ok := iv.Value.(*ast.Literal)
	if !ok || (lit.Kind != ast.LiteralNumber && lit.Kind != ast.LiteralString) {
		return models.Operand{}, unsupported(iv.Position, "INTERVAL with a computed amount")
	}
	amount, err := strconv.ParseInt(lit.Value, 10, 64)
	if err != nil {
		return models.Operand{}, unsupported(iv.Position, "non-integer INTERVAL amount "+lit.Value)
	}

	ms := amount * mapping.IntervalUnits[iv.Unit]
	if n.Name == "DATE_SUB" {
		ms = -ms
	}
	d.Date.OffsetMillis += ms
	return d, nil
}

// =============================================================================
// CONDITIONS
// =============================================================================

func (pl *Planner) predicate(e ast.Expr, c *exprCtx) (*models.Predicate, error) {
	switch n := e.(type) {
	case *ast.BinaryExpr:
		if n.IsLogical() {
			l, err := pl.predicate(n.Left, c)
			if err != nil {
				return nil, err
			}
			r, err := pl.predicate(n.Right, c)
			if err != nil {
				return nil, err
			}
			if n.Op == "AND" {
				return models.And(l, r), nil
			}
			return or(l, r), nil
		}
		if n.IsComparison() {
			l, err := pl.operand(n.Left, c)
			if err != nil {
				return nil, err
			}
			r, err := pl.operand(n.Right, c)
			if err != nil {
				return nil, err
			}
			if l.IsConst() && r.IsConst() {
				return nil, unsupported(n.Position, "constant condition "+n.String())
			}
			return compare(mapping.ComparisonOperators[n.Op], l, r), nil
		}

	case *ast.UnaryExpr:
		if n.Op == "NOT" {
			child, err := pl.predicate(n.Operand, c)
			if err != nil {
				return nil, err
			}
			return &models.Predicate{Kind: models.PredNot, Children: []*models.Predicate{child}}, nil
		}

	case *ast.InExpr:
		if n.Subquery != nil {
			if c.subquery == nil {
				return nil, unsupported(n.Position, "subquery in "+c.clause)
			}
			return c.subquery(n)
		}
		left, err := pl.operand(n.Expr, c)
		if err != nil {
			return nil, err
		}
		pred := &models.Predicate{Kind: models.PredIn, Left: left, Negated: n.Not}
		for _, item := range n.List {
			v, err := pl.operand(item, c)
			if err != nil {
				return nil, err
			}
			pred.Values = append(pred.Values, v)
		}
		return pred, nil

	case *ast.LikeExpr:
		left, err := pl.operand(n.Expr, c)
		if err != nil {
			return nil, err
		}
		return &models.Predicate{Kind: models.PredLike, Left: left, Pattern: n.Pattern, Negated: n.Not}, nil

	case *ast.BetweenExpr:
		left, err := pl.operand(n.Expr, c)
		if err != nil {
			return nil, err
		}
		low, err := pl.operand(n.Low, c)
		if err != nil {
			return nil, err
		}
		high, err := pl.operand(n.High, c)
		if err != nil {
			return nil, err
		}
		return &models.Predicate{Kind: models.PredBetween, Left: left, Low: low, High: high, Negated: n.Not}, nil

	case *ast.IsNullExpr:
		left, err := pl.operand(n.Expr, c)
		if err != nil {
			return nil, err
		}
		return &models.Predicate{Kind: models.PredNull, Left: left, Negated: n.Not}, nil

	case *ast.ColumnRef:
		// WHERE active
		f, err := c.column(n)
		if err != nil {
			return nil, err
		}
		return compare("$eq", f, models.Literal(true)), nil
	}
	return nil, unsupported(e.Pos(), "non-boolean condition "+e.String()+" in "+c.clause)
}

func or(l, r *models.Predicate) *models.Predicate {
	var children []*models.Predicate
	for _, p := range []*models.Predicate{l, r} {
		if p.Kind == models.PredOr {
			children = append(children, p.Children...)
		} else {
			children = append(children, p)
		}
	}
	return &models.Predicate{Kind: models.PredOr, Children: children}
}

// compare keeps the field on the left: 25 < age becomes age > 25
func compare(op string, l, r models.Operand) *models.Predicate {
	if l.IsConst() && r.Kind == models.OperandField {
		l, r = r, l
		op = mapping.FlippedComparisons[op]
	}
	return &models.Predicate{Kind: models.PredCompare, Op: op, Left: l, Right: r}
}
