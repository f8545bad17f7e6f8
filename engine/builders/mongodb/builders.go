package mongodb

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/mapping"
)

// Options tunes document building
type Options struct {
	// CaseInsensitiveLike adds $options: "i" to LIKE regexes
	CaseInsensitiveLike bool
}

// ============================================================================
// VALUES
// ============================================================================

// Value converts a constant operand to a BSON value for query and insert documents
func Value(op models.Operand) interface{} {
	if op.Kind == models.OperandDate {
		return DateExpr{OffsetMillis: op.Date.OffsetMillis, DayStart: op.Date.DayStart}
	}
	return op.Value
}

// Expression converts an operand to an aggregation expression
func Expression(op models.Operand) interface{} {
	switch op.Kind {
	case models.OperandField:
		return "$" + op.Field.Path
	case models.OperandDate:
		return Value(op)
	case models.OperandArith:
		return bson.D{{Key: mapping.ArithmeticOperators[op.Op], Value: bson.A{Expression(op.Args[0]), Expression(op.Args[1])}}}
	case models.OperandFunc:
		return function(op)
	}
	// "$x" would read as a field path
	if s, ok := op.Value.(string); ok && strings.HasPrefix(s, "$") {
		return bson.D{{Key: "$literal", Value: s}}
	}
	return op.Value
}

func function(op models.Operand) interface{} {
	args := make(bson.A, len(op.Args))
	for i, a := range op.Args {
		args[i] = Expression(a)
	}
	switch op.Func {
	case "CONCAT", "COALESCE":
		return bson.D{{Key: op.Op, Value: args}}
	case "ROUND":
		if len(args) == 1 {
			args = append(args, 0)
		}
		return bson.D{{Key: op.Op, Value: args}}
	}
	return bson.D{{Key: op.Op, Value: args[0]}}
}

// ============================================================================
// FILTER BUILDING
// ============================================================================

// BuildFilter renders a predicate as a query document. Top-level conjuncts
// share one document when their keys are distinct; comparisons on the same
// field merge into one operator document; anything else falls back to $and.
func BuildFilter(p *models.Predicate, opts Options) bson.D {
	if p == nil {
		return bson.D{}
	}
	conjuncts := p.Conjuncts()
	clauses := make([]bson.D, len(conjuncts))
	for i, c := range conjuncts {
		clauses[i] = buildClause(c, opts)
	}
	return conjoin(clauses)
}

func conjoin(clauses []bson.D) bson.D {
	if len(clauses) == 1 {
		return clauses[0]
	}
	merged := bson.D{}
	for _, c := range clauses {
		for _, e := range c {
			i := indexOf(merged, e.Key)
			if i < 0 {
				merged = append(merged, e)
				continue
			}
			if ops, ok := mergeOperators(merged[i].Value, e.Value); ok && !strings.HasPrefix(e.Key, "$") {
				merged[i].Value = ops
				continue
			}
			and := make(bson.A, len(clauses))
			for k, cl := range clauses {
				and[k] = cl
			}
			return bson.D{{Key: "$and", Value: and}}
		}
	}
	return merged
}

func indexOf(d bson.D, key string) int {
	for i, e := range d {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// mergeOperators joins { $gt: 1 } and { $lt: 9 } when no operator repeats
func mergeOperators(a, b interface{}) (bson.D, bool) {
	da, ok := a.(bson.D)
	if !ok || !isOperatorDoc(da) {
		return nil, false
	}
	db, ok := b.(bson.D)
	if !ok || !isOperatorDoc(db) {
		return nil, false
	}
	for _, e := range db {
		if indexOf(da, e.Key) >= 0 {
			return nil, false
		}
	}
	out := append(bson.D{}, da...)
	return append(out, db...), true
}

func isOperatorDoc(d bson.D) bool {
	if len(d) == 0 {
		return false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return false
		}
	}
	return true
}

func buildClause(p *models.Predicate, opts Options) bson.D {
	switch p.Kind {
	case models.PredAnd:
		return BuildFilter(p, opts)
	case models.PredOr:
		return bson.D{{Key: mapping.LogicalOperators["OR"], Value: buildBranches(p.Children, opts)}}
	case models.PredNot:
		return bson.D{{Key: mapping.LogicalOperators["NOT"], Value: buildBranches(p.Children, opts)}}
	case models.PredNonEmpty:
		if p.Negated {
			return bson.D{{Key: p.Left.Field.Path, Value: bson.D{{Key: "$size", Value: 0}}}}
		}
		return bson.D{{Key: p.Left.Field.Path, Value: bson.D{{Key: "$ne", Value: bson.A{}}}}}
	}

	if !queryable(p) {
		return bson.D{{Key: "$expr", Value: buildExprPredicate(p, opts)}}
	}

	path := p.Left.Field.Path
	switch p.Kind {
	case models.PredCompare:
		if p.Op == "$eq" {
			return bson.D{{Key: path, Value: Value(p.Right)}}
		}
		return bson.D{{Key: path, Value: bson.D{{Key: p.Op, Value: Value(p.Right)}}}}

	case models.PredIn:
		op := mapping.ComparisonOperators["IN"]
		if p.Negated {
			op = mapping.ComparisonOperators["NOT_IN"]
		}
		values := make(bson.A, len(p.Values))
		for i, v := range p.Values {
			values[i] = Value(v)
		}
		return bson.D{{Key: path, Value: bson.D{{Key: op, Value: values}}}}

	case models.PredLike:
		regex := bson.D{{Key: "$regex", Value: LikeToRegex(p.Pattern)}}
		if opts.CaseInsensitiveLike {
			regex = append(regex, bson.E{Key: "$options", Value: "i"})
		}
		if p.Negated {
			return bson.D{{Key: path, Value: bson.D{{Key: "$not", Value: regex}}}}
		}
		return bson.D{{Key: path, Value: regex}}

	case models.PredNull:
		if p.Negated {
			return bson.D{{Key: path, Value: bson.D{{Key: "$ne", Value: nil}}}}
		}
		return bson.D{{Key: path, Value: nil}}

	case models.PredBetween:
		if p.Negated {
			return bson.D{{Key: mapping.LogicalOperators["OR"], Value: bson.A{
				bson.D{{Key: path, Value: bson.D{{Key: "$lt", Value: Value(p.Low)}}}},
				bson.D{{Key: path, Value: bson.D{{Key: "$gt", Value: Value(p.High)}}}},
			}}}
		}
		return bson.D{{Key: path, Value: bson.D{{Key: "$gte", Value: Value(p.Low)}, {Key: "$lte", Value: Value(p.High)}}}}
	}
	return bson.D{}
}

func buildBranches(children []*models.Predicate, opts Options) bson.A {
	out := make(bson.A, len(children))
	for i, c := range children {
		out[i] = BuildFilter(c, opts)
	}
	return out
}

// queryable reports predicates expressible in the query language: a field
// compared to constants
func queryable(p *models.Predicate) bool {
	if p.Left.Kind != models.OperandField {
		return false
	}
	switch p.Kind {
	case models.PredCompare:
		return p.Right.IsConst()
	case models.PredIn:
		for _, v := range p.Values {
			if !v.IsConst() {
				return false
			}
		}
	case models.PredBetween:
		return p.Low.IsConst() && p.High.IsConst()
	}
	return true
}

// buildExprPredicate renders a predicate as an aggregation expression for $expr
func buildExprPredicate(p *models.Predicate, opts Options) interface{} {
	left := Expression(p.Left)
	var out interface{}
	switch p.Kind {
	case models.PredCompare:
		return bson.D{{Key: p.Op, Value: bson.A{left, Expression(p.Right)}}}
	case models.PredIn:
		values := make(bson.A, len(p.Values))
		for i, v := range p.Values {
			values[i] = Expression(v)
		}
		out = bson.D{{Key: "$in", Value: bson.A{left, values}}}
	case models.PredLike:
		match := bson.D{{Key: "input", Value: left}, {Key: "regex", Value: LikeToRegex(p.Pattern)}}
		if opts.CaseInsensitiveLike {
			match = append(match, bson.E{Key: "options", Value: "i"})
		}
		out = bson.D{{Key: "$regexMatch", Value: match}}
	case models.PredNull:
		return bson.D{{Key: negate("$eq", p.Negated), Value: bson.A{left, nil}}}
	case models.PredBetween:
		out = bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$gte", Value: bson.A{left, Expression(p.Low)}}},
			bson.D{{Key: "$lte", Value: bson.A{left, Expression(p.High)}}},
		}}}
	}
	if p.Negated {
		return bson.D{{Key: "$not", Value: bson.A{out}}}
	}
	return out
}

func negate(op string, negated bool) string {
	if negated {
		return "$ne"
	}
	return op
}

// ============================================================================
// LIKE
// ============================================================================

// LikeToRegex converts a LIKE pattern to an anchored regular expression:
// 'abc%' -> ^abc, '%abc' -> abc$, '%abc%' -> abc, 'abc' -> ^abc$.
// _ matches one character; a backslash escapes the next character.
func LikeToRegex(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	leading := len(runes) > 0 && runes[0] == '%'
	trailing := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes):
			i++
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
			trailing = false
		case r == '%':
			if i > 0 && i < len(runes)-1 {
				b.WriteString(".*")
			}
			trailing = i == len(runes)-1
		case r == '_':
			b.WriteString(".")
			trailing = false
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
			trailing = false
		}
	}

	out := b.String()
	if !leading {
		out = "^" + out
	}
	if !trailing {
		out += "$"
	}
	return out
}
