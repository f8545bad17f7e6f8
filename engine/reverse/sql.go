package reverse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/omniql-engine/querycraft/mapping"
)

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ident renders a MySQL identifier, backquoted unless it is a plain word
func ident(name string) string {
	if plainIdent.MatchString(name) && !mapping.IsKeyword(strings.ToUpper(name)) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// literal renders a scalar BSON value as a SQL literal
func (c *converter) literal(v interface{}) (string, error) {
	switch x := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return "NULL", nil
	case string:
		return quoteString(x), nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case primitive.Decimal128:
		return x.String(), nil
	case primitive.DateTime:
		c.note("Dates are written as 'YYYY-MM-DD HH:MM:SS' literals in UTC; compare them against DATETIME or TIMESTAMP columns.")
		return quoteString(x.Time().UTC().Format("2006-01-02 15:04:05")), nil
	case primitive.ObjectID:
		c.note("ObjectIds are written as their hex strings; store them in a CHAR(24) column or map them to your own keys.")
		return quoteString(x.Hex()), nil
	default:
		return "", fmt.Errorf("%w: value of type %T", ErrNotSupported, v)
	}
}

// ============================================================================
// CONDITIONS
// ============================================================================

// cond is a boolean expression tree; leaves hold rendered SQL
type cond struct {
	op   string
	text string
	kids []cond
}

func leaf(s string) cond { return cond{text: s} }

func (c cond) empty() bool { return c.op == "" && c.text == "" }

func and(kids ...cond) cond { return combine("AND", kids) }

func or(kids ...cond) cond { return combine("OR", kids) }

func combine(op string, kids []cond) cond {
	var out []cond
	for _, k := range kids {
		switch {
		case k.empty():
		case k.op == op:
			out = append(out, k.kids...)
		default:
			out = append(out, k)
		}
	}
	switch len(out) {
	case 0:
		return cond{}
	case 1:
		return out[0]
	}
	return cond{op: op, kids: out}
}

func not(c cond) cond {
	if c.empty() {
		return c
	}
	return leaf("NOT (" + c.String() + ")")
}

// grouped renders the condition for use inside a larger AND
func (c cond) grouped() string {
	if c.op == "OR" {
		return "(" + c.String() + ")"
	}
	return c.String()
}

func (c cond) String() string {
	if c.op == "" {
		return c.text
	}
	parts := make([]string, len(c.kids))
	for i, k := range c.kids {
		s := k.String()
		if c.op == "AND" && k.op == "OR" {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " "+c.op+" ")
}

// ============================================================================
// STATEMENTS
// ============================================================================

type join struct {
	kind    string
	table   string
	alias   string
	on      []string
	local   string
	foreign string
	unwound bool
	dropped bool

	// lookups with a sub-pipeline ending in $limit: 1 test for existence
	semi     bool
	subWhere cond
}

func (j *join) String() string {
	s := j.kind + " " + ident(j.table)
	if j.alias != j.table {
		s += " AS " + ident(j.alias)
	}
	return s + " ON " + strings.Join(j.on, " AND ")
}

// maxRows is the LIMIT MySQL documents for an OFFSET without a row limit
const maxRows = "18446744073709551615"

type selectQuery struct {
	distinct bool
	columns  []string
	from     string
	joins    []*join
	where    cond
	groupBy  []string
	having   cond
	orderBy  []string
	limit    *int64
	offset   *int64
}

func (q *selectQuery) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(q.columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(q.columns, ", "))
	}
	b.WriteString(" FROM " + ident(q.from))
	for _, j := range q.joins {
		if !j.dropped {
			b.WriteString(" " + j.String())
		}
	}
	if !q.where.empty() {
		b.WriteString(" WHERE " + q.where.String())
	}
	if len(q.groupBy) > 0 {
		b.WriteString(" GROUP BY " + strings.Join(q.groupBy, ", "))
	}
	if !q.having.empty() {
		b.WriteString(" HAVING " + q.having.String())
	}
	if len(q.orderBy) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(q.orderBy, ", "))
	}
	if q.limit != nil {
		b.WriteString(" LIMIT " + strconv.FormatInt(*q.limit, 10))
	}
	if q.offset != nil && *q.offset > 0 {
		if q.limit == nil {
			b.WriteString(" LIMIT " + maxRows)
		}
		b.WriteString(" OFFSET " + strconv.FormatInt(*q.offset, 10))
	}
	return b.String()
}

// applySkip and applyLimit fold $skip and $limit in pipeline order into one
// LIMIT/OFFSET pair
func (q *selectQuery) applySkip(n int64) {
	if q.limit != nil {
		rest := *q.limit - n
		if rest < 0 {
			rest = 0
		}
		q.limit = &rest
	}
	total := n
	if q.offset != nil {
		total += *q.offset
	}
	q.offset = &total
}

func (q *selectQuery) applyLimit(n int64) {
	if q.limit == nil || n < *q.limit {
		q.limit = &n
	}
}

// alias renders "expr AS name", dropping the alias when it adds nothing
func alias(expr, name string) string {
	if expr == ident(name) || strings.HasSuffix(expr, "."+ident(name)) && !strings.ContainsAny(expr, "( ") {
		return expr
	}
	return expr + " AS " + ident(name)
}
