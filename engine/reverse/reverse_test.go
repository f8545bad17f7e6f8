package reverse

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// the example queries offered by the reverse converter page
var dashboardExamples = map[string]struct {
	query      string
	collection string
	want       string
}{
	"find": {
		query: `{
  "find": "users",
  "filter": {"age": {"$gt": 25}, "status": "active"},
  "projection": {"name": 1, "email": 1, "age": 1},
  "sort": {"created_at": -1},
  "limit": 10
}`,
		want: "SELECT name, email, age FROM users WHERE age > 25 AND status = 'active' ORDER BY created_at DESC LIMIT 10",
	},
	"aggregate": {
		query: `[
  {"$match": {"status": "active"}},
  {"$group": {"_id": "$category", "count": {"$sum": 1}, "avgPrice": {"$avg": "$price"}}},
  {"$sort": {"count": -1}},
  {"$limit": 5}
]`,
		collection: "products",
		want:       "SELECT category, COUNT(*) AS count, AVG(price) AS avgPrice FROM products WHERE status = 'active' GROUP BY category ORDER BY count DESC LIMIT 5",
	},
	"insert": {
		query: `{
  "insert": "users",
  "document": {"name": "John Doe", "email": "john@example.com", "age": 30, "status": "active"}
}`,
		want: "INSERT INTO users (name, email, age, status) VALUES ('John Doe', 'john@example.com', 30, 'active')",
	},
	"update": {
		query: `{
  "update": "users",
  "filter": {"email": "john@example.com"},
  "update": {"$set": {"status": "inactive", "updated_at": "2025-11-19"}}
}`,
		want: "UPDATE users SET status = 'inactive', updated_at = '2025-11-19' WHERE email = 'john@example.com'",
	},
	"delete": {
		query: `{
  "delete": "users",
  "filter": {"status": "inactive", "last_login": {"$lt": "2024-01-01"}}
}`,
		want: "DELETE FROM users WHERE status = 'inactive' AND last_login < '2024-01-01'",
	},
	"lookup": {
		query: `[
  {"$lookup": {"from": "orders", "localField": "_id", "foreignField": "user_id", "as": "user_orders"}},
  {"$match": {"user_orders": {"$ne": []}}},
  {"$project": {"name": 1, "email": 1, "order_count": {"$size": "$user_orders"}}}
]`,
		collection: "users",
		want: "SELECT users.name, users.email, COUNT(user_orders.user_id) AS order_count FROM users " +
			"INNER JOIN orders AS user_orders ON users._id = user_orders.user_id " +
			"GROUP BY users._id, users.name, users.email",
	},
}

func TestDashboardExamples(t *testing.T) {
	for name, tc := range dashboardExamples {
		t.Run(name, func(t *testing.T) {
			res, err := ToSQL(tc.query, Options{Collection: tc.collection})
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.SQL)
			assert.NotEmpty(t, res.Explanation)
			assert.NotEmpty(t, res.Notes)
		})
	}
}

func TestFindFilters(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name: "logical and pattern operators",
			query: `{"find": "users", "filter": {
				"$or": [{"age": {"$lt": 18}}, {"age": {"$gte": 65}}],
				"name": {"$regex": "^Jo"},
				"country": {"$in": ["DE", "FR"]},
				"deleted_at": null}}`,
			want: "SELECT * FROM users WHERE (age < 18 OR age >= 65) AND name LIKE 'Jo%' AND country IN ('DE', 'FR') AND deleted_at IS NULL",
		},
		{
			name:  "range becomes between",
			query: `{"find": "orders", "filter": {"total": {"$gte": 10, "$lte": 20}}}`,
			want:  "SELECT * FROM orders WHERE total BETWEEN 10 AND 20",
		},
		{
			name:  "nor and not in",
			query: `{"find": "orders", "filter": {"$nor": [{"status": "void"}, {"total": 0}], "region": {"$nin": ["x"]}}}`,
			want:  "SELECT * FROM orders WHERE NOT (status = 'void' OR total = 0) AND region NOT IN ('x')",
		},
		{
			name:  "exists and ne null",
			query: `{"find": "users", "filter": {"email": {"$exists": true}, "phone": {"$ne": null}}}`,
			want:  "SELECT * FROM users WHERE email IS NOT NULL AND phone IS NOT NULL",
		},
		{
			name:  "skip and limit",
			query: `{"find": "users", "skip": 20, "limit": 10}`,
			want:  "SELECT * FROM users LIMIT 10 OFFSET 20",
		},
		{
			name:  "skip without limit",
			query: `{"find": "users", "skip": 5}`,
			want:  "SELECT * FROM users LIMIT 18446744073709551615 OFFSET 5",
		},
		{
			name:  "count",
			query: `{"count": "users", "query": {"active": true}}`,
			want:  "SELECT COUNT(*) FROM users WHERE active = TRUE",
		},
		{
			name:  "distinct",
			query: `{"distinct": "users", "key": "country", "query": {"age": {"$gt": 30}}}`,
			want:  "SELECT DISTINCT country FROM users WHERE age > 30",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ToSQL(tt.query, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.SQL)
		})
	}
}

func TestRegexToLike(t *testing.T) {
	tests := map[string]string{
		"^abc$":  "abc",
		"abc":    "%abc%",
		"^a.c":   "a_c%",
		"a.*b":   "%a%b%",
		".*foo$": "%foo",
		"100%":   `%100\%%`,
	}
	for in, want := range tests {
		got, ok := regexToLike(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{`^\d+`, "a|b", "[abc]"} {
		_, ok := regexToLike(in)
		assert.False(t, ok, in)
	}

	res, err := ToSQL(`{"find": "users", "filter": {"code": {"$regex": "^[A-Z]{3}$"}}}`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE code REGEXP '^[A-Z]{3}$'", res.SQL)
}

func TestPipelines(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		collection string
		want       string
	}{
		{
			name: "unwound lookup",
			query: `{"aggregate": "orders", "pipeline": [
				{"$lookup": {"from": "customers", "localField": "customer_id", "foreignField": "_id", "as": "customer"}},
				{"$unwind": "$customer"},
				{"$match": {"customer.country": "DE"}},
				{"$project": {"total": 1, "name": "$customer.name", "_id": 0}}]}`,
			want: "SELECT orders.total, customer.name FROM orders INNER JOIN customers AS customer ON orders.customer_id = customer._id WHERE customer.country = 'DE'",
		},
		{
			name: "preserved unwind",
			query: `{"aggregate": "orders", "pipeline": [
				{"$lookup": {"from": "customers", "localField": "customer_id", "foreignField": "_id", "as": "customer"}},
				{"$unwind": {"path": "$customer", "preserveNullAndEmptyArrays": true}}]}`,
			want: "SELECT * FROM orders LEFT JOIN customers AS customer ON orders.customer_id = customer._id",
		},
		{
			name: "existence lookup",
			query: `[
				{"$lookup": {"from": "orders", "localField": "_id", "foreignField": "user_id",
					"pipeline": [{"$match": {"total": {"$gt": 100}}}, {"$limit": 1}], "as": "big"}},
				{"$match": {"big": {"$ne": []}}},
				{"$unset": "big"}]`,
			collection: "users",
			want:       "SELECT * FROM users WHERE users._id IN (SELECT user_id FROM orders WHERE orders.total > 100)",
		},
		{
			name: "compound group with having",
			query: `{"aggregate": "orders", "pipeline": [
				{"$group": {"_id": {"status": "$status", "region": "$region"},
					"n": {"$sum": 1},
					"shipped": {"$sum": {"$cond": [{"$gt": ["$shipped_at", null]}, 1, 0]}}}},
				{"$match": {"n": {"$gt": 2}}},
				{"$sort": {"n": -1}}]}`,
			want: "SELECT status, region, COUNT(*) AS n, COUNT(shipped_at) AS shipped FROM orders GROUP BY status, region HAVING COUNT(*) > 2 ORDER BY n DESC",
		},
		{
			name:       "count stage",
			query:      `[{"$match": {"active": true}}, {"$count": "total"}]`,
			collection: "users",
			want:       "SELECT COUNT(*) AS total FROM users WHERE active = TRUE",
		},
		{
			name:       "limit before skip",
			query:      `[{"$sort": {"age": 1}}, {"$limit": 10}, {"$skip": 3}]`,
			collection: "users",
			want:       "SELECT * FROM users ORDER BY age LIMIT 7 OFFSET 3",
		},
		{
			name: "computed projection",
			query: `{"aggregate": "products", "pipeline": [
				{"$project": {"name": 1, "gross": {"$multiply": ["$price", 1.2]}, "label": {"$toUpper": "$name"}, "_id": 0}}]}`,
			want: "SELECT name, (price * 1.2) AS gross, UPPER(name) AS label FROM products",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ToSQL(tt.query, Options{Collection: tt.collection})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.SQL)
		})
	}
}

func TestPipelineCollection(t *testing.T) {
	res, err := ToSQL(`[
		{"$lookup": {"from": "orders", "localField": "_id", "foreignField": "user_id", "as": "o"}},
		{"$unwind": "$o"}]`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users INNER JOIN orders AS o ON users._id = o.user_id", res.SQL)
	assert.Contains(t, res.Notes, "The pipeline does not name its collection; users is inferred from the $lookup keys.")

	res, err = ToSQL(`[{"$match": {"a": 1}}]`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM collection WHERE a = 1", res.SQL)
	assert.Contains(t, res.Notes, "The pipeline does not name its collection; replace collection with the source table.")
}

func TestFindNegativeLimit(t *testing.T) {
	res, err := ToSQL(`{"find": "t", "limit": -5}`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t LIMIT 5", res.SQL)
	assert.Contains(t, res.Notes, "A negative limit asks for a single batch of 5 documents; it becomes LIMIT 5.")
}

func TestWrites(t *testing.T) {
	res, err := ToSQL(`{"updateOne": "products", "filter": {"sku": "A1"}, "update": {
		"$inc": {"stock": -2}, "$mul": {"price": 1.1},
		"$currentDate": {"updated_at": true}, "$unset": {"legacy": ""}}}`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE products SET stock = stock - 2, price = price * 1.1, updated_at = NOW(), legacy = NULL WHERE sku = 'A1' LIMIT 1", res.SQL)

	res, err = ToSQL(`{"delete": "orders", "deletes": [{"q": {"status": "void"}, "limit": 1}]}`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM orders WHERE status = 'void' LIMIT 1", res.SQL)

	res, err = ToSQL(`{"insert": "t", "documents": [{"a": 1}, {"a": 2, "b": "x"}]}`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO t (a, b) VALUES (1, NULL), (2, 'x')", res.SQL)
	assert.Contains(t, res.Notes, "The documents have different fields; missing columns are inserted as NULL.")

	res, err = ToSQL(`{"updateMany": "users", "filter": {}, "update": [{"$set": {"score": {"$add": ["$score", 1]}}}]}`, Options{})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE users SET score = (score + 1)", res.SQL)
}

func TestErrors(t *testing.T) {
	_, err := ToSQL("   ", Options{})
	assert.True(t, errors.Is(err, ErrEmptyQuery))

	_, err = ToSQL(`{"find": `, Options{})
	assert.True(t, errors.Is(err, ErrParse), "%v", err)

	for _, q := range []string{
		`{"mapReduce": "users"}`,
		`[{"$facet": {}}]`,
		`{"find": "users", "projection": {"password": 0}}`,
		`{"find": "users", "filter": {"$where": "this.a > 1"}}`,
		`{"find": "users", "filter": {"tags": {"$elemMatch": {"a": 1}}}}`,
		`[{"$group": {"_id": null, "n": {"$sum": 1}}}, {"$group": {"_id": null, "m": {"$sum": 1}}}]`,
	} {
		_, err := ToSQL(q, Options{Collection: "users"})
		assert.True(t, errors.Is(err, ErrNotSupported), "%s: %v", q, err)
	}
}
