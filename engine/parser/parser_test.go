package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniql-engine/querycraft/engine/ast"
)

func mustParse(t *testing.T, sql string) ast.Statement {
	t.Helper()
	stmt, err := Parse(sql)
	require.NoError(t, err, sql)
	return stmt
}

func TestParseSelect(t *testing.T) {
	stmt := mustParse(t, "SELECT * FROM users WHERE age > 25 AND status = 'active' ORDER BY created_at DESC LIMIT 10")

	sel, ok := stmt.(*ast.SelectStatement)
	require.True(t, ok)
	require.Len(t, sel.Items, 1)
	assert.True(t, sel.Items[0].Star)
	assert.Equal(t, "users", sel.From.Name)

	and, ok := sel.Where.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Op)
	assert.Equal(t, "(age > 25)", and.Left.String())
	assert.Equal(t, "(status = 'active')", and.Right.String())

	require.NotNil(t, sel.OrderBy)
	require.Len(t, sel.OrderBy.Items, 1)
	assert.True(t, sel.OrderBy.Items[0].Desc)
	require.NotNil(t, sel.Limit)
	assert.EqualValues(t, 10, *sel.Limit)
	assert.Nil(t, sel.Offset)
}

func TestParseSelectItemsAndAliases(t *testing.T) {
	stmt := mustParse(t, "SELECT DISTINCT u.name AS user_name, o.*, COUNT(*) total, LOWER(email) FROM users AS u JOIN orders o ON u.id = o.user_id")
	sel := stmt.(*ast.SelectStatement)

	assert.True(t, sel.Distinct)
	require.Len(t, sel.Items, 4)
	assert.Equal(t, "user_name", sel.Items[0].Alias)
	assert.Equal(t, "u.name", sel.Items[0].Expr.String())
	assert.True(t, sel.Items[1].Star)
	assert.Equal(t, "o", sel.Items[1].StarTable)
	assert.Equal(t, "total", sel.Items[2].Alias)
	assert.Equal(t, "COUNT(*)", sel.Items[2].Expr.String())
	assert.Equal(t, "LOWER(email)", sel.Items[3].Expr.String())

	assert.Equal(t, "u", sel.From.Alias)
	require.Len(t, sel.Joins, 1)
	assert.Equal(t, ast.JoinInner, sel.Joins[0].Kind)
	assert.Equal(t, "o", sel.Joins[0].Table.Alias)
}

func TestParseJoins(t *testing.T) {
	stmt := mustParse(t, `SELECT u.name, o.total FROM users u
		LEFT OUTER JOIN orders o ON u.id = o.user_id AND u.tenant = o.tenant
		INNER JOIN payments p ON p.order_id = o.id`)
	sel := stmt.(*ast.SelectStatement)

	require.Len(t, sel.Joins, 2)
	assert.Equal(t, ast.JoinLeft, sel.Joins[0].Kind)
	require.Len(t, sel.Joins[0].On, 2)
	assert.Equal(t, "u.tenant", sel.Joins[0].On[1].Left.String())
	assert.Equal(t, "o.tenant", sel.Joins[0].On[1].Right.String())
	assert.Equal(t, ast.JoinInner, sel.Joins[1].Kind)
	assert.Equal(t, "payments", sel.Joins[1].Table.Name)
}

func TestParseAggregateQuery(t *testing.T) {
	stmt := mustParse(t, `SELECT category, COUNT(*) as count, AVG(price) as avg_price
		FROM products WHERE price > 0 GROUP BY category HAVING COUNT(*) > 5 ORDER BY avg_price DESC LIMIT 5 OFFSET 10;`)
	sel := stmt.(*ast.SelectStatement)

	require.NotNil(t, sel.GroupBy)
	require.Len(t, sel.GroupBy.Keys, 1)
	assert.Equal(t, "category", sel.GroupBy.Keys[0].Column)
	assert.Equal(t, "(COUNT(*) > 5)", sel.Having.String())
	assert.EqualValues(t, 5, *sel.Limit)
	assert.EqualValues(t, 10, *sel.Offset)
}

func TestParseLimitOffsetComma(t *testing.T) {
	sel := mustParse(t, "SELECT a FROM t LIMIT 20, 10").(*ast.SelectStatement)
	assert.EqualValues(t, 10, *sel.Limit)
	assert.EqualValues(t, 20, *sel.Offset)
}

func TestParsePredicates(t *testing.T) {
	tests := []struct {
		where string
		want  string
	}{
		{"a IN (1, 2, 3)", "a IN (1, 2, 3)"},
		{"a NOT IN ('x')", "a NOT IN ('x')"},
		{"name LIKE 'jo%'", "name LIKE 'jo%'"},
		{"name NOT LIKE '%x'", "name NOT LIKE '%x'"},
		{"a BETWEEN 1 AND 10", "a BETWEEN 1 AND 10"},
		{"a NOT BETWEEN 1 AND 10", "a NOT BETWEEN 1 AND 10"},
		{"deleted_at IS NULL", "deleted_at IS NULL"},
		{"deleted_at IS NOT NULL", "deleted_at IS NOT NULL"},
		{"NOT a = 1", "NOT (a = 1)"},
		{"a = 1 OR b = 2 AND c = 3", "((a = 1) OR ((b = 2) AND (c = 3)))"},
		{"(a = 1 OR b = 2) AND c = 3", "(((a = 1) OR (b = 2)) AND (c = 3))"},
		{"price * 2 + 1 >= -3", "(((price * 2) + 1) >= -3)"},
		{"created_at < DATE_SUB(NOW(), INTERVAL 90 DAY)", "(created_at < DATE_SUB(NOW(), INTERVAL 90 DAY))"},
		{"ts > CURRENT_TIMESTAMP", "(ts > CURRENT_TIMESTAMP())"},
		{"flag = TRUE", "(flag = TRUE)"},
	}

	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			sel := mustParse(t, "SELECT * FROM t WHERE "+tt.where).(*ast.SelectStatement)
			assert.Equal(t, tt.want, sel.Where.String())
		})
	}
}

func TestParseInSubquery(t *testing.T) {
	sel := mustParse(t, "SELECT name FROM customers WHERE id IN (SELECT customer_id FROM orders WHERE total > 100)").(*ast.SelectStatement)

	in, ok := sel.Where.(*ast.InExpr)
	require.True(t, ok)
	require.NotNil(t, in.Subquery)
	assert.Equal(t, "orders", in.Subquery.Select.From.Name)
	assert.Equal(t, "(total > 100)", in.Subquery.Select.Where.String())
}

func TestParseInsert(t *testing.T) {
	stmt := mustParse(t, "INSERT INTO users (name, email, age, created_at) VALUES ('John Doe', 'john@example.com', 30, NOW()), ('Jane', 'jane@example.com', 28, NOW())")
	ins := stmt.(*ast.InsertStatement)

	assert.Equal(t, "users", ins.Table.Name)
	assert.Equal(t, []string{"name", "email", "age", "created_at"}, ins.Columns)
	require.Len(t, ins.Rows, 2)
	assert.Equal(t, "NOW()", ins.Rows[0][3].String())
}

func TestParseUpdate(t *testing.T) {
	stmt := mustParse(t, "UPDATE products SET price = price * 1.1, updated_at = NOW() WHERE category = 'electronics'")
	upd := stmt.(*ast.UpdateStatement)

	require.Len(t, upd.Assignments, 2)
	assert.Equal(t, "price", upd.Assignments[0].Column)
	assert.Equal(t, "(price * 1.1)", upd.Assignments[0].Value.String())
	assert.Equal(t, "(category = 'electronics')", upd.Where.String())
}

func TestParseDelete(t *testing.T) {
	stmt := mustParse(t, "DELETE FROM orders WHERE status = 'cancelled'")
	del := stmt.(*ast.DeleteStatement)
	assert.Equal(t, "orders", del.Table.Name)
	assert.Equal(t, "(status = 'cancelled')", del.Where.String())
}

func TestUnsupportedFeatures(t *testing.T) {
	tests := []struct {
		sql     string
		feature string
	}{
		{"WITH x AS (SELECT 1) SELECT * FROM x", "common table expression (WITH)"},
		{"SELECT ROW_NUMBER() OVER (ORDER BY id) FROM t", "window function"},
		{"SELECT SUM(a) OVER (PARTITION BY b) FROM t", "window function"},
		{"SELECT a FROM t UNION SELECT a FROM u", "set operation UNION"},
		{"SELECT * FROM a RIGHT JOIN b ON a.id = b.a_id", "RIGHT JOIN"},
		{"SELECT * FROM a FULL OUTER JOIN b ON a.id = b.a_id", "FULL JOIN"},
		{"SELECT * FROM a CROSS JOIN b", "CROSS JOIN"},
		{"SELECT * FROM a JOIN b ON a.id > b.a_id", "non-equality join condition (>)"},
		{"SELECT * FROM a JOIN b ON a.id = b.a_id OR a.x = b.x", "OR in join condition"},
		{"SELECT * FROM a JOIN b USING (id)", "JOIN ... USING"},
		{"SELECT * FROM a WHERE id IN (SELECT a_id FROM b WHERE x IN (SELECT x FROM c))", "nested subquery"},
		{"SELECT * FROM a WHERE id = (SELECT max(id) FROM b)", "subquery outside IN"},
		{"SELECT * FROM a WHERE EXISTS (SELECT 1 FROM b)", "EXISTS"},
		{"SELECT CASE WHEN a THEN 1 END FROM t", "CASE expression"},
		{"INSERT INTO t SELECT * FROM u", "INSERT ... SELECT"},
		{"INSERT INTO t VALUES (1)", "INSERT without column list"},
		{"CREATE TABLE t (id int)", "DDL statement CREATE"},
		{"GRANT SELECT ON t TO bob", "DCL statement GRANT"},
		{"UPDATE t SET a = 1 ORDER BY id", "ORDER BY on UPDATE"},
		{"DELETE FROM t LIMIT 5", "LIMIT on DELETE"},
		{"SELECT COUNT(DISTINCT a) FROM t", "COUNT(DISTINCT ...)"},
		{"SELECT SOUNDEX(name) FROM t", "function SOUNDEX"},
		{"SELECT * FROM a, b", "comma-separated FROM (implicit join)"},
		{"SELECT 1 FROM t; SELECT 2 FROM t", "multiple statements"},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			_, err := Parse(tt.sql)
			var unsupported *UnsupportedFeature
			require.True(t, errors.As(err, &unsupported), "got %v", err)
			assert.Equal(t, tt.feature, unsupported.Feature)

			var perr *ParseError
			assert.False(t, errors.As(err, &perr))
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		sql        string
		expected   []string
		found      string
		suggestion string
	}{
		{"SELEC * FROM users", []string{"SELECT", "INSERT", "UPDATE", "DELETE"}, "SELEC", "SELECT"},
		{"", []string{"SELECT", "INSERT", "UPDATE", "DELETE"}, "end of input", ""},
		{"SELECT * users", []string{"FROM"}, "users", ""},
		{"SELECT * FROM", []string{"table name"}, "end of input", ""},
		{"SELECT * FROM t WHERE", []string{"column", "literal", "function call", "("}, "end of input", ""},
		{"SELECT * FROM t WHERE a LIKE 5", []string{"string pattern"}, "5", ""},
		{"SELECT * FROM t LIMIT x", []string{"non-negative integer"}, "x", ""},
		{"SELECT * FROM t WHERE a = 1 ORDR BY a", []string{"end of input"}, "ORDR", "ORDER"},
		{"INSERT INTO t (a, b) VALUES (1)", []string{"2 values"}, "1 values", ""},
		{"SELECT DATE_SUB(NOW()) FROM t", []string{"2 arguments"}, "1 arguments to DATE_SUB", ""},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			_, err := Parse(tt.sql)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.Equal(t, tt.expected, perr.Expected)
			assert.Equal(t, tt.found, perr.Found)
			assert.Equal(t, tt.suggestion, perr.Suggestion)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse("SELECT *\nFROM users\nWHERE age >")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 3, perr.Line)
	assert.Equal(t, 12, perr.Column)
	assert.Contains(t, perr.Error(), "line 3, column 12")
}
