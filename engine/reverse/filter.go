package reverse

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/omniql-engine/querycraft/mapping"
)

// resolver renders a field path for the stage being converted
type resolver func(path string) (string, error)

var (
	arithmeticSymbols = map[string]string{}
	scalarNames       = map[string]string{}
)

func init() {
	for sym, op := range mapping.ArithmeticOperators {
		arithmeticSymbols[op] = sym
	}
	for name, fn := range mapping.ScalarFunctions {
		if fn.Operator != "" {
			scalarNames[fn.Operator] = name
		}
	}
}

// ============================================================================
// QUERY FILTERS
// ============================================================================

// filter converts a query filter; top-level keys are ANDed
func (c *converter) filter(doc bson.D, ref resolver) (cond, error) {
	var parts []cond
	for _, e := range doc {
		switch e.Key {
		case "$and", "$or", "$nor":
			list, err := array(e.Value, e.Key)
			if err != nil {
				return cond{}, err
			}
			if len(list) == 0 {
				return cond{}, fmt.Errorf("%w: %s expects a non-empty array", ErrParse, e.Key)
			}
			var kids []cond
			for _, item := range list {
				d, err := document(item, e.Key+" element")
				if err != nil {
					return cond{}, err
				}
				k, err := c.filter(d, ref)
				if err != nil {
					return cond{}, err
				}
				kids = append(kids, k)
			}
			switch e.Key {
			case "$and":
				parts = append(parts, and(kids...))
			case "$or":
				parts = append(parts, or(kids...))
			default:
				parts = append(parts, not(or(kids...)))
			}
		case "$expr":
			s, err := c.expr(e.Value, ref)
			if err != nil {
				return cond{}, err
			}
			parts = append(parts, leaf(s))
		case "$text", "$where", "$jsonSchema", "$comment":
			return cond{}, fmt.Errorf("%w: query operator %s", ErrNotSupported, e.Key)
		default:
			if strings.HasPrefix(e.Key, "$") {
				return cond{}, fmt.Errorf("%w: query operator %s", ErrNotSupported, e.Key)
			}
			col, err := ref(e.Key)
			if err != nil {
				return cond{}, err
			}
			k, err := c.fieldCond(col, e.Value)
			if err != nil {
				return cond{}, err
			}
			parts = append(parts, k)
		}
	}
	return and(parts...), nil
}

func (c *converter) fieldCond(col string, v interface{}) (cond, error) {
	switch x := v.(type) {
	case nil, primitive.Null:
		return leaf(col + " IS NULL"), nil
	case primitive.Regex:
		return c.like(col, x.Pattern, x.Options, false), nil
	case bson.D:
		if !operatorDoc(x) {
			return cond{}, fmt.Errorf("%w: matching a whole embedded document", ErrNotSupported)
		}
		return c.operators(col, x)
	case bson.A:
		return cond{}, fmt.Errorf("%w: matching a whole array", ErrNotSupported)
	}
	lit, err := c.literal(v)
	if err != nil {
		return cond{}, err
	}
	return leaf(col + " = " + lit), nil
}

func isNull(v interface{}) bool {
	switch v.(type) {
	case nil, primitive.Null:
		return true
	}
	return false
}

func operatorDoc(d bson.D) bool {
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

func (c *converter) operators(col string, ops bson.D) (cond, error) {
	if low, high, ok := between(ops); ok {
		lo, err := c.literal(low)
		if err != nil {
			return cond{}, err
		}
		hi, err := c.literal(high)
		if err != nil {
			return cond{}, err
		}
		return leaf(col + " BETWEEN " + lo + " AND " + hi), nil
	}

	options, _ := field(ops, "$options")
	var parts []cond
	for _, e := range ops {
		switch e.Key {
		case "$options":
		case "$eq", "$ne":
			if isNull(e.Value) {
				if e.Key == "$eq" {
					parts = append(parts, leaf(col+" IS NULL"))
				} else {
					parts = append(parts, leaf(col+" IS NOT NULL"))
				}
				continue
			}
			if _, isArray := e.Value.(bson.A); isArray && e.Key == "$ne" {
				return cond{}, fmt.Errorf("%w: comparing %s with an array", ErrNotSupported, col)
			}
			if e.Key == "$ne" {
				c.note("$ne also matches documents where the field is missing or null; SQL != skips NULL rows, so add OR " + col + " IS NULL if those rows matter.")
			}
			lit, err := c.literal(e.Value)
			if err != nil {
				return cond{}, err
			}
			parts = append(parts, leaf(col+" "+mapping.ReverseComparisons[e.Key]+" "+lit))
		case "$gt", "$gte", "$lt", "$lte":
			lit, err := c.literal(e.Value)
			if err != nil {
				return cond{}, err
			}
			parts = append(parts, leaf(col+" "+mapping.ReverseComparisons[e.Key]+" "+lit))
		case "$in", "$nin":
			list, err := array(e.Value, e.Key)
			if err != nil {
				return cond{}, err
			}
			k, err := c.in(col, list, e.Key == "$nin")
			if err != nil {
				return cond{}, err
			}
			parts = append(parts, k)
		case "$regex":
			switch p := e.Value.(type) {
			case string:
				opt, _ := options.(string)
				parts = append(parts, c.like(col, p, opt, false))
			case primitive.Regex:
				parts = append(parts, c.like(col, p.Pattern, p.Options, false))
			default:
				return cond{}, fmt.Errorf("%w: $regex must be a string", ErrParse)
			}
		case "$exists":
			present, ok := truthy(e.Value)
			if !ok {
				return cond{}, fmt.Errorf("%w: $exists must be a boolean", ErrParse)
			}
			c.note("SQL rows have no missing columns; $exists is read as a NULL check.")
			if present {
				parts = append(parts, leaf(col+" IS NOT NULL"))
			} else {
				parts = append(parts, leaf(col+" IS NULL"))
			}
		case "$not":
			switch inner := e.Value.(type) {
			case primitive.Regex:
				parts = append(parts, c.like(col, inner.Pattern, inner.Options, true))
			case bson.D:
				if !operatorDoc(inner) {
					return cond{}, fmt.Errorf("%w: $not expects an operator document", ErrParse)
				}
				k, err := c.operators(col, inner)
				if err != nil {
					return cond{}, err
				}
				parts = append(parts, not(k))
			default:
				return cond{}, fmt.Errorf("%w: $not expects an operator document", ErrParse)
			}
		default:
			return cond{}, fmt.Errorf("%w: query operator %s", ErrNotSupported, e.Key)
		}
	}
	return and(parts...), nil
}

// between recognises {$gte: a, $lte: b} in either order
func between(ops bson.D) (interface{}, interface{}, bool) {
	if len(ops) != 2 {
		return nil, nil, false
	}
	low, okLow := field(ops, "$gte")
	high, okHigh := field(ops, "$lte")
	if !okLow || !okHigh || isNull(low) || isNull(high) {
		return nil, nil, false
	}
	return low, high, true
}

func (c *converter) in(col string, list bson.A, negate bool) (cond, error) {
	if len(list) == 0 {
		if negate {
			return leaf("TRUE"), nil
		}
		return leaf("FALSE"), nil
	}
	items := make([]string, len(list))
	for i, v := range list {
		lit, err := c.literal(v)
		if err != nil {
			return cond{}, err
		}
		items[i] = lit
	}
	op := " IN ("
	if negate {
		op = " NOT IN ("
	}
	return leaf(col + op + strings.Join(items, ", ") + ")"), nil
}

// like renders a regex as LIKE when it is a plain anchored or unanchored
// text pattern and as REGEXP otherwise
func (c *converter) like(col, pattern, options string, negate bool) cond {
	op := "LIKE"
	p, ok := regexToLike(pattern)
	if !ok {
		op, p = "REGEXP", pattern
		c.note("The regex has no LIKE equivalent and is kept as a MySQL REGEXP, which does not use an index.")
	}
	if strings.Contains(options, "i") {
		c.note("The regex is case-insensitive; MySQL's default collation already compares case-insensitively, a binary or _cs collation does not.")
	} else if op == "LIKE" {
		c.note("MongoDB regexes are case-sensitive; under MySQL's default collation LIKE ignores case, so use LIKE BINARY for an exact match.")
	}
	if negate {
		op = "NOT " + op
	}
	return leaf(col + " " + op + " " + quoteString(p))
}

// regexToLike maps ^, $, . and .* onto a LIKE pattern
func regexToLike(pattern string) (string, bool) {
	p := pattern
	start := strings.HasPrefix(p, "^")
	p = strings.TrimPrefix(p, "^")
	end := strings.HasSuffix(p, "$") && !strings.HasSuffix(p, `\$`)
	p = strings.TrimSuffix(p, "$")
	if !end && strings.HasSuffix(p, ".*") {
		p = strings.TrimSuffix(p, ".*")
	}
	if !start && strings.HasPrefix(p, ".*") {
		p = strings.TrimPrefix(p, ".*")
	}

	var b strings.Builder
	if !start {
		b.WriteByte('%')
	}
	for i := 0; i < len(p); i++ {
		ch := p[i]
		switch {
		case ch == '\\':
			if i+1 >= len(p) {
				return "", false
			}
			i++
			n := p[i]
			if n >= 'a' && n <= 'z' || n >= 'A' && n <= 'Z' || n >= '0' && n <= '9' {
				return "", false
			}
			if n == '%' || n == '_' {
				b.WriteByte('\\')
			}
			b.WriteByte(n)
		case ch == '.' && i+1 < len(p) && p[i+1] == '*':
			b.WriteByte('%')
			i++
		case ch == '.':
			b.WriteByte('_')
		case strings.IndexByte("[](){}|+*?^$", ch) >= 0:
			return "", false
		case ch == '%' || ch == '_':
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	if !end {
		b.WriteByte('%')
	}
	return b.String(), true
}

// ============================================================================
// AGGREGATION EXPRESSIONS
// ============================================================================

func (c *converter) expr(v interface{}, ref resolver) (string, error) {
	switch x := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(x, "$$"); ok {
			if bound, ok := c.vars[name]; ok {
				return bound, nil
			}
			return "", fmt.Errorf("%w: variable $$%s", ErrNotSupported, name)
		}
		if path, ok := strings.CutPrefix(x, "$"); ok {
			return ref(path)
		}
		return quoteString(x), nil
	case bson.D:
		if len(x) != 1 || !strings.HasPrefix(x[0].Key, "$") {
			return "", fmt.Errorf("%w: embedded document expressions", ErrNotSupported)
		}
		return c.operatorExpr(x[0].Key, x[0].Value, ref)
	case bson.A:
		return "", fmt.Errorf("%w: array expressions", ErrNotSupported)
	}
	return c.literal(v)
}

func (c *converter) args(v interface{}, ref resolver) ([]string, error) {
	list, ok := v.(bson.A)
	if !ok {
		list = bson.A{v}
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, err := c.expr(item, ref)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (c *converter) operatorExpr(op string, arg interface{}, ref resolver) (string, error) {
	if op == "$literal" {
		return c.literal(arg)
	}
	if op == "$cond" {
		return c.caseExpr(arg, ref)
	}
	if op == "$in" {
		list, ok := arg.(bson.A)
		if ok && len(list) == 2 {
			values, ok := list[1].(bson.A)
			if ok {
				x, err := c.expr(list[0], ref)
				if err != nil {
					return "", err
				}
				k, err := c.in(x, values, false)
				if err != nil {
					return "", err
				}
				return k.String(), nil
			}
		}
		return "", fmt.Errorf("%w: $in expects a field and a literal array", ErrNotSupported)
	}

	args, err := c.args(arg, ref)
	if err != nil {
		return "", err
	}
	if sym, ok := arithmeticSymbols[op]; ok {
		if len(args) < 2 {
			return "", fmt.Errorf("%w: %s expects two or more arguments", ErrParse, op)
		}
		return "(" + strings.Join(args, " "+sym+" ") + ")", nil
	}
	if cmp, ok := mapping.ReverseComparisons[op]; ok {
		if len(args) != 2 {
			return "", fmt.Errorf("%w: %s expects two arguments", ErrParse, op)
		}
		switch {
		case args[1] == "NULL" && op == "$eq":
			return args[0] + " IS NULL", nil
		case args[1] == "NULL" && op == "$ne":
			return args[0] + " IS NOT NULL", nil
		}
		return args[0] + " " + cmp + " " + args[1], nil
	}
	switch op {
	case "$and", "$or":
		return "(" + strings.Join(args, " "+strings.ToUpper(op[1:])+" ") + ")", nil
	case "$not":
		return "NOT (" + args[0] + ")", nil
	}
	if name, ok := scalarNames[op]; ok {
		return name + "(" + strings.Join(args, ", ") + ")", nil
	}
	return "", fmt.Errorf("%w: expression operator %s", ErrNotSupported, op)
}

// caseExpr reads $cond in both its array and document forms
func (c *converter) caseExpr(arg interface{}, ref resolver) (string, error) {
	var parts [3]interface{}
	switch x := arg.(type) {
	case bson.A:
		if len(x) != 3 {
			return "", fmt.Errorf("%w: $cond expects three arguments", ErrParse)
		}
		copy(parts[:], x)
	case bson.D:
		for i, k := range []string{"if", "then", "else"} {
			v, ok := field(x, k)
			if !ok {
				return "", fmt.Errorf("%w: $cond is missing %s", ErrParse, k)
			}
			parts[i] = v
		}
	default:
		return "", fmt.Errorf("%w: $cond expects an array or a document", ErrParse)
	}
	var out [3]string
	for i, p := range parts {
		s, err := c.expr(p, ref)
		if err != nil {
			return "", err
		}
		out[i] = s
	}
	return "CASE WHEN " + out[0] + " THEN " + out[1] + " ELSE " + out[2] + " END", nil
}
