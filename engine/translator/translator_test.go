package translator

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniql-engine/querycraft/engine/lexer"
	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/engine/parser"
	"github.com/omniql-engine/querycraft/engine/planner"
	"github.com/omniql-engine/querycraft/engine/validator"
)

// the example statements offered by the converter page
var dashboardExamples = map[string]string{
	"select": `-- Simple SELECT with WHERE clause
SELECT * FROM users
WHERE age > 25 AND status = 'active'
ORDER BY created_at DESC
LIMIT 10;`,
	"join": `SELECT orders.id, orders.total, customers.name, customers.email
FROM orders
INNER JOIN customers ON orders.customer_id = customers.id
WHERE orders.status = 'completed'
ORDER BY orders.created_at DESC;`,
	"aggregate": `SELECT category, COUNT(*) as product_count, AVG(price) as avg_price, MAX(price) as max_price
FROM products
WHERE status = 'active'
GROUP BY category
HAVING COUNT(*) > 5
ORDER BY product_count DESC;`,
	"insert": `INSERT INTO users (name, email, age, status, created_at)
VALUES ('John Doe', 'john@example.com', 30, 'active', NOW());`,
	"update": `UPDATE products SET price = price * 1.1, updated_at = NOW()
WHERE category = 'electronics' AND stock > 0;`,
	"delete": `DELETE FROM orders
WHERE status = 'cancelled'
  AND created_at < DATE_SUB(NOW(), INTERVAL 90 DAY);`,
	"complex_join": `SELECT u.name, u.email, COUNT(o.id) as total_orders, SUM(o.total) as total_spent, AVG(o.total) as avg_order_value
FROM users u
LEFT JOIN orders o ON u.id = o.user_id
WHERE u.status = 'active'
GROUP BY u.id, u.name, u.email
HAVING COUNT(o.id) > 3
ORDER BY total_spent DESC;`,
}

func TestTranslateDashboardExamples(t *testing.T) {
	tr := New(DefaultConfig())
	for kind, sql := range dashboardExamples {
		t.Run(kind, func(t *testing.T) {
			res, err := tr.Translate(Request{SQL: sql, QueryType: kind})
			require.NoError(t, err)
			assert.NotEmpty(t, res.PrimaryMongoDB)
			assert.NotEmpty(t, res.Explanation)
			assert.NotEmpty(t, res.Notes)
			assert.NotNil(t, res.Approaches)
			for _, n := range res.Notes {
				assert.NotContains(t, n, "does not match", kind)
			}
		})
	}
}

func TestTranslateSelect(t *testing.T) {
	res, err := New(DefaultConfig()).Translate(Request{SQL: dashboardExamples["select"]})
	require.NoError(t, err)

	assert.Equal(t, `db.users.find({ age: { $gt: 25 }, status: "active" }).sort({ created_at: -1 }).limit(10)`, res.PrimaryMongoDB)
	assert.Empty(t, res.Approaches)
	assert.Empty(t, res.SchemaSuggestions)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"approaches":[]`)
	assert.NotContains(t, string(out), "schema_suggestions")
}

func TestTranslateEscapedLikeWildcards(t *testing.T) {
	tr := New(DefaultConfig())

	res, err := tr.Translate(Request{SQL: `SELECT * FROM t WHERE s LIKE '100\%'`})
	require.NoError(t, err)
	assert.Equal(t, `db.t.find({ s: { $regex: "^100%$" } })`, res.PrimaryMongoDB)

	res, err = tr.Translate(Request{SQL: `SELECT * FROM t WHERE s LIKE '100\_%'`})
	require.NoError(t, err)
	assert.Equal(t, `db.t.find({ s: { $regex: "^100_" } })`, res.PrimaryMongoDB)
}

func TestTranslateDelete(t *testing.T) {
	res, err := New(DefaultConfig()).Translate(Request{SQL: "DELETE FROM orders WHERE status = 'cancelled'"})
	require.NoError(t, err)
	assert.Equal(t, `db.orders.deleteMany({ status: "cancelled" })`, res.PrimaryMongoDB)

	res, err = New(DefaultConfig()).Translate(Request{SQL: dashboardExamples["delete"]})
	require.NoError(t, err)
	assert.Equal(t, `db.orders.deleteMany({ status: "cancelled", created_at: { $lt: new Date(Date.now() - 7776000000) } })`, res.PrimaryMongoDB)
}

func TestTranslateJoinApproaches(t *testing.T) {
	res, err := New(DefaultConfig()).Translate(Request{SQL: dashboardExamples["join"]})
	require.NoError(t, err)

	require.Len(t, res.Approaches, 3)
	assert.Equal(t, "Embedded Documents", res.Approaches[0].Title)
	assert.Equal(t, "Referenced Collections with $lookup", res.Approaches[1].Title)
	assert.Equal(t, "Denormalization", res.Approaches[2].Title)
	assert.Equal(t, res.PrimaryMongoDB, res.Approaches[1].Code)
	assert.True(t, strings.HasPrefix(res.PrimaryMongoDB, "db.orders.aggregate(["))
	assert.NotEmpty(t, res.SchemaSuggestions)
}

func TestTranslateIsDeterministic(t *testing.T) {
	tr := New(DefaultConfig())
	for _, sql := range dashboardExamples {
		a, err := tr.Translate(Request{SQL: sql})
		require.NoError(t, err)
		b, err := tr.Translate(Request{SQL: sql})
		require.NoError(t, err)

		ja, err := json.Marshal(a)
		require.NoError(t, err)
		jb, err := json.Marshal(b)
		require.NoError(t, err)
		assert.Equal(t, string(ja), string(jb))
	}
}

func TestTranslateErrors(t *testing.T) {
	tr := New(DefaultConfig())

	_, err := tr.Translate(Request{SQL: "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent"})
	var unsupported *parser.UnsupportedFeature
	assert.True(t, errors.As(err, &unsupported), "%v", err)

	_, err = tr.Translate(Request{SQL: "SELECT id, ROW_NUMBER() OVER (ORDER BY id) FROM users"})
	assert.True(t, errors.As(err, &unsupported), "%v", err)

	_, err = tr.Translate(Request{SQL: "SELECT name FROM orders o JOIN customers c ON o.customer_id = c.id"})
	var ambiguous *planner.AmbiguousColumn
	require.True(t, errors.As(err, &ambiguous), "%v", err)
	assert.Equal(t, "name", ambiguous.Column)

	_, err = New(Config{MaxTokens: 5}).Translate(Request{SQL: "SELECT a, b, c FROM t"})
	var tooLarge *lexer.InputTooLarge
	require.True(t, errors.As(err, &tooLarge), "%v", err)
	assert.Equal(t, 5, tooLarge.Limit)
}

func TestTranslateErrorLocations(t *testing.T) {
	tr := New(DefaultConfig())

	tests := []struct {
		sql     string
		feature string
		line    int
		column  int
	}{
		{"SELECT * FROM t\nWHERE x = 1e400", "numeric literal 1e400 outside the double range", 2, 11},
		{"SELECT * FROM t WHERE created_at > INTERVAL 1 DAY", "INTERVAL outside DATE_ADD/DATE_SUB", 1, 36},
		{"SELECT * FROM t WHERE x = 9223372036854775808", "integer literal 9223372036854775808 outside the 64-bit range", 1, 27},
	}
	for _, tt := range tests {
		t.Run(tt.feature, func(t *testing.T) {
			_, err := tr.Translate(Request{SQL: tt.sql})
			var unsupported *parser.UnsupportedFeature
			require.True(t, errors.As(err, &unsupported), "%v", err)
			assert.Equal(t, tt.feature, unsupported.Feature)
			assert.Equal(t, tt.line, unsupported.Line)
			assert.Equal(t, tt.column, unsupported.Column)
		})
	}

	_, err := tr.Translate(Request{SQL: "SELECT name FROM orders o JOIN customers c ON o.customer_id = c.id"})
	var ambiguous *planner.AmbiguousColumn
	require.True(t, errors.As(err, &ambiguous), "%v", err)
	assert.Equal(t, 1, ambiguous.Line)
	assert.Equal(t, 8, ambiguous.Col)

	res, err := tr.Translate(Request{SQL: "SELECT * FROM t WHERE x = -9223372036854775808"})
	require.NoError(t, err)
	assert.Equal(t, "db.t.find({ x: -9223372036854775808 })", res.PrimaryMongoDB)
}

func TestTranslateQueryTypeHint(t *testing.T) {
	tr := New(DefaultConfig())

	res, err := tr.Translate(Request{SQL: dashboardExamples["select"], QueryType: "delete"})
	require.NoError(t, err)
	assert.Contains(t, res.Notes, `The query type "delete" does not match the statement, which was translated as a plain SELECT.`)

	res, err = tr.Translate(Request{SQL: dashboardExamples["join"], QueryType: "select"})
	require.NoError(t, err)
	for _, n := range res.Notes {
		assert.NotContains(t, n, "query type")
	}

	res, err = tr.Translate(Request{SQL: dashboardExamples["insert"], QueryType: "upsert"})
	require.NoError(t, err)
	assert.Contains(t, res.Notes, `The query type "upsert" is not recognised; the statement was translated as an INSERT.`)
}

func TestTranslateDialectNote(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidateDialect = validator.PostgreSQL
	res, err := New(cfg).Translate(Request{SQL: "SELECT `name` FROM users"})
	require.NoError(t, err)

	found := false
	for _, n := range res.Notes {
		found = found || strings.HasPrefix(n, "The statement is not valid PostgreSQL")
	}
	assert.True(t, found, "%v", res.Notes)
}

func TestClassify(t *testing.T) {
	tr := New(DefaultConfig())
	want := map[string]string{
		"select":       "select",
		"join":         "join",
		"aggregate":    "aggregate",
		"insert":       "insert",
		"update":       "update",
		"delete":       "delete",
		"complex_join": "join",
	}
	for kind, sql := range dashboardExamples {
		c, err := tr.Compile(sql)
		require.NoError(t, err)
		assert.Equal(t, want[kind], Classify(c.Plan), kind)
	}

	c, err := tr.Compile("SELECT * FROM users")
	require.NoError(t, err)
	assert.Equal(t, models.KindFind, c.Statement.Method)
}
