package emitter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/engine/parser"
	"github.com/omniql-engine/querycraft/engine/planner"
)

func compile(t *testing.T, sql string) (*models.Plan, *mongodb.Statement) {
	t.Helper()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)
	plan, err := planner.New(planner.Options{}).Plan(stmt)
	require.NoError(t, err)
	st, err := mongodb.Build(plan, mongodb.Options{})
	require.NoError(t, err)
	return plan, st
}

func TestShell(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{
			"SELECT * FROM users WHERE age > 25 AND status = 'active' ORDER BY created_at DESC LIMIT 10",
			`db.users.find({ age: { $gt: 25 }, status: "active" }).sort({ created_at: -1 }).limit(10)`,
		},
		{
			"DELETE FROM orders WHERE status = 'cancelled'",
			`db.orders.deleteMany({ status: "cancelled" })`,
		},
		{
			"SELECT * FROM orders WHERE created_at >= DATE_SUB(NOW(), INTERVAL 90 DAY)",
			`db.orders.find({ created_at: { $gte: new Date(Date.now() - 7776000000) } })`,
		},
		{
			"SELECT name FROM users LIMIT 5 OFFSET 10",
			`db.users.find({}, { name: 1, _id: 0 }).skip(10).limit(5)`,
		},
		{
			"SELECT COUNT(*) FROM users WHERE active = TRUE",
			`db.users.countDocuments({ active: true })`,
		},
		{
			"SELECT DISTINCT country FROM users",
			`db.users.distinct("country")`,
		},
		{
			"INSERT INTO users (name, age) VALUES ('Ann', 31)",
			`db.users.insertOne({ name: "Ann", age: 31 })`,
		},
		{
			"UPDATE users SET status = 'inactive' WHERE last_login < '2023-01-01'",
			`db.users.updateMany({ last_login: { $lt: "2023-01-01" } }, { $set: { status: "inactive" } })`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			_, st := compile(t, tt.sql)
			assert.Equal(t, tt.want, Shell(st))
		})
	}
}

func TestShellPipeline(t *testing.T) {
	_, st := compile(t, "SELECT status, COUNT(*) AS n FROM orders GROUP BY status")

	assert.Equal(t, "db.orders.aggregate([\n"+
		"  { $group: { _id: \"$status\", n: { $sum: 1 } } },\n"+
		"  { $project: { status: \"$_id\", n: 1, _id: 0 } }\n"+
		"])", Shell(st))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "db.getCollection(\"order-items\")", Collection("order-items"))
	assert.Equal(t, `{ "customer.name": 1, $match: {} }`, Format(bson.D{
		{Key: "customer.name", Value: 1},
		{Key: "$match", Value: bson.D{}},
	}))
	assert.Equal(t, `[1.5, null, "<b>"]`, Format(bson.A{1.5, nil, "<b>"}))
	assert.Equal(t, `{ a: 1, b: 2 }`, Format(bson.M{"b": 2, "a": 1}))
	assert.Equal(t, "new Date()", Format(mongodb.DateExpr{}))
	assert.Equal(t, "new Date(Date.now() + 3600000)", Format(mongodb.DateExpr{OffsetMillis: 3600000}))
}

func TestCommandJSON(t *testing.T) {
	_, st := compile(t, "SELECT * FROM users WHERE age > 25 AND status = 'active' ORDER BY created_at DESC LIMIT 10")

	out, err := CommandJSON(st, time.Now())
	require.NoError(t, err)
	assert.JSONEq(t, `{"find":"users","filter":{"age":{"$gt":25},"status":"active"},"sort":{"created_at":-1},"limit":10}`, out)

	_, st = compile(t, "DELETE FROM sessions WHERE expires_at < NOW()")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cmd, err := Command(st, now)
	require.NoError(t, err)
	assert.Equal(t, "delete", cmd[0].Key)
	q := cmd[1].Value.(bson.A)[0].(bson.D)[0].Value.(bson.D)
	assert.Equal(t, primitive.NewDateTimeFromTime(now), q[0].Value.(bson.D)[0].Value)
}

func TestExplain(t *testing.T) {
	plan, st := compile(t, "SELECT name, email FROM users WHERE age > 25 AND status = 'active' ORDER BY created_at DESC LIMIT 10")
	got := Explain(plan, st)

	assert.True(t, strings.HasPrefix(got, "The SELECT reads the users collection with find()."))
	assert.Contains(t, got, "(> → $gt, = is an equality match)")
	assert.Contains(t, got, "hides _id")
	assert.Contains(t, got, "LIMIT becomes limit().")

	plan, st = compile(t, "SELECT o.id, c.name FROM orders o LEFT JOIN customers c ON o.customer_id = c.id")
	got = Explain(plan, st)
	assert.Contains(t, got, "$lookup → $unwind → $project")
	assert.Contains(t, got, "The LEFT JOIN on customers becomes a $lookup matching customer_id to customers.id.")
	assert.Contains(t, got, "preserveNullAndEmptyArrays")
}

func TestNotes(t *testing.T) {
	plan, st := compile(t, "SELECT * FROM users")
	assert.Equal(t, []string{"The translation is direct; results match the SQL statement."}, Notes(plan, st, NoteOptions{}))

	plan, st = compile(t, "SELECT * FROM users WHERE age > 25 AND status = 'active' ORDER BY created_at DESC LIMIT 10")
	assert.Equal(t, []string{
		"An index on { status: 1, created_at: -1, age: 1 } supports this query (equality fields first, then sort fields, then ranges).",
	}, Notes(plan, st, NoteOptions{}))

	plan, st = compile(t, "SELECT name FROM users WHERE name LIKE '%son'")
	notes := Notes(plan, st, NoteOptions{})
	require.Len(t, notes, 2)
	assert.Contains(t, notes[0], "cannot use an index")
	assert.Contains(t, notes[1], "case-sensitive")

	notes = Notes(plan, st, NoteOptions{CaseInsensitiveLike: true})
	assert.Contains(t, notes[1], "case-insensitively")

	plan, st = compile(t, "SELECT o.total, c.name FROM orders o JOIN customers c ON o.customer_id = c.id")
	notes = Notes(plan, st, NoteOptions{})
	assert.Contains(t, notes[0], "$lookup is a left outer join")
	assert.Contains(t, notes, "The id column is kept as a regular field; MongoDB's primary key is _id. Enable id renaming if your documents use _id.")
	assert.NotContains(t, Notes(plan, st, NoteOptions{RenameID: true}), "The id column is kept as a regular field; MongoDB's primary key is _id. Enable id renaming if your documents use _id.")

	plan, st = compile(t, "UPDATE users SET name = CONCAT(first, ' ', last)")
	notes = Notes(plan, st, NoteOptions{})
	assert.Equal(t, "UPDATE without WHERE modifies every document in the collection", notes[0])
	assert.Contains(t, notes, "The pipeline form of updateMany() requires MongoDB 4.2 or later.")
}

func TestSchemaSuggestions(t *testing.T) {
	plan, _ := compile(t, "SELECT * FROM users WHERE age > 25")
	assert.Empty(t, SchemaSuggestions(plan))

	plan, _ = compile(t, "SELECT o.total, c.name FROM orders o JOIN customers c ON o.customer_id = c.id")
	assert.Contains(t, SchemaSuggestions(plan), "Embed customer as a sub-document of each order")

	plan, _ = compile(t, "SELECT c.name, o.total FROM customers c JOIN orders o ON o.customer_id = c.id")
	assert.Contains(t, SchemaSuggestions(plan), "Store orders as an array inside each customer")

	plan, _ = compile(t, "SELECT status, COUNT(*) FROM orders GROUP BY status")
	assert.Contains(t, SchemaSuggestions(plan), "summary collection")
}
