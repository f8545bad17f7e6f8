package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/engine/parser"
	"github.com/omniql-engine/querycraft/engine/planner"
)

func build(t *testing.T, sql string) *Statement {
	t.Helper()
	stmt, err := parser.Parse(sql)
	require.NoError(t, err)
	plan, err := planner.New(planner.Options{}).Plan(stmt)
	require.NoError(t, err)
	st, err := Build(plan, Options{})
	require.NoError(t, err)
	return st
}

func TestBuildFind(t *testing.T) {
	st := build(t, "SELECT name, email FROM users WHERE age > 25 AND status = 'active' ORDER BY created_at DESC LIMIT 10")

	assert.Equal(t, models.KindFind, st.Method)
	assert.Equal(t, bson.D{
		{Key: "age", Value: bson.D{{Key: "$gt", Value: int64(25)}}},
		{Key: "status", Value: "active"},
	}, st.Filter)
	assert.Equal(t, bson.D{{Key: "name", Value: 1}, {Key: "email", Value: 1}, {Key: "_id", Value: 0}}, st.Projection)
	assert.Equal(t, bson.D{{Key: "created_at", Value: -1}}, st.Sort)
	require.NotNil(t, st.Limit)
	assert.EqualValues(t, 10, *st.Limit)
}

func TestBuildFilterMerging(t *testing.T) {
	tests := []struct {
		sql  string
		want bson.D
	}{
		{
			"SELECT * FROM t WHERE age >= 18 AND age < 65",
			bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: int64(18)}, {Key: "$lt", Value: int64(65)}}}},
		},
		{
			"SELECT * FROM t WHERE a = 1 AND a = 2",
			bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "a", Value: int64(1)}},
				bson.D{{Key: "a", Value: int64(2)}},
			}}},
		},
		{
			"SELECT * FROM t WHERE a = 1 OR b IS NULL",
			bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "a", Value: int64(1)}},
				bson.D{{Key: "b", Value: nil}},
			}}},
		},
		{
			"SELECT * FROM t WHERE NOT (a = 1) AND b IN (1, 2)",
			bson.D{
				{Key: "$nor", Value: bson.A{bson.D{{Key: "a", Value: int64(1)}}}},
				{Key: "b", Value: bson.D{{Key: "$in", Value: bson.A{int64(1), int64(2)}}}},
			},
		},
		{
			"SELECT * FROM t WHERE price BETWEEN 10 AND 20",
			bson.D{{Key: "price", Value: bson.D{{Key: "$gte", Value: int64(10)}, {Key: "$lte", Value: int64(20)}}}},
		},
		{
			"SELECT * FROM t WHERE a > b",
			bson.D{{Key: "$expr", Value: bson.D{{Key: "$gt", Value: bson.A{"$a", "$b"}}}}},
		},
		{
			"SELECT * FROM t WHERE price * qty > 100",
			bson.D{{Key: "$expr", Value: bson.D{{Key: "$gt", Value: bson.A{
				bson.D{{Key: "$multiply", Value: bson.A{"$price", "$qty"}}}, int64(100),
			}}}}},
		},
		{
			"SELECT * FROM t WHERE name NOT LIKE 'a%'",
			bson.D{{Key: "name", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$regex", Value: "^a"}}}}}},
		},
		{
			"SELECT * FROM t WHERE deleted_at IS NOT NULL",
			bson.D{{Key: "deleted_at", Value: bson.D{{Key: "$ne", Value: nil}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			st := build(t, tt.sql)
			assert.Equal(t, tt.want, st.Filter)
		})
	}
}

func TestLikeToRegex(t *testing.T) {
	tests := map[string]string{
		"abc%":   "^abc",
		"%abc":   "abc$",
		"%abc%":  "abc",
		"abc":    "^abc$",
		"a_c":    "^a.c$",
		"a%c":    "^a.*c$",
		"1.5%":   `^1\.5`,
		`50\%`:   "^50%$",
		"(x)%":   `^\(x\)`,
	}
	for pattern, want := range tests {
		assert.Equal(t, want, LikeToRegex(pattern), pattern)
	}
}

func TestBuildCaseInsensitiveLike(t *testing.T) {
	pred := &models.Predicate{
		Kind:    models.PredLike,
		Left:    models.FieldRef(models.Field{Path: "name"}),
		Pattern: "jo%",
	}
	got := BuildFilter(pred, Options{CaseInsensitiveLike: true})
	assert.Equal(t, bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^jo"}, {Key: "$options", Value: "i"}}}}, got)
}

func TestBuildJoinPipeline(t *testing.T) {
	st := build(t, `SELECT o.id, c.name FROM orders o LEFT JOIN customers c ON o.customer_id = c.id
		WHERE o.total > 100 ORDER BY c.name`)

	require.Equal(t, models.KindAggregate, st.Method)
	assert.Equal(t, []bson.D{
		{{Key: "$match", Value: bson.D{{Key: "total", Value: bson.D{{Key: "$gt", Value: int64(100)}}}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "customers"},
			{Key: "localField", Value: "customer_id"},
			{Key: "foreignField", Value: "id"},
			{Key: "as", Value: "customer"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$customer"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "customer.name", Value: 1}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "id", Value: 1},
			{Key: "name", Value: "$customer.name"},
			{Key: "_id", Value: 0},
		}}},
	}, st.Pipeline)
}

func TestBuildLookupExtraKeysAndSemiJoin(t *testing.T) {
	j := models.JoinSpec{
		From: "stock", LocalField: "product_id", ForeignField: "product_id", As: "stock",
		Kind: models.JoinInner, ExtraKeys: []models.JoinKey{{Local: "warehouse", Foreign: "warehouse"}},
	}
	assert.Equal(t, bson.D{
		{Key: "from", Value: "stock"},
		{Key: "localField", Value: "product_id"},
		{Key: "foreignField", Value: "product_id"},
		{Key: "let", Value: bson.D{{Key: "key1", Value: "$warehouse"}}},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{"$warehouse", "$$key1"}}}}}}},
		}},
		{Key: "as", Value: "stock"},
	}, BuildLookup(j, Options{}))

	st := build(t, "SELECT name FROM users WHERE id IN (SELECT user_id FROM orders)")
	require.Len(t, st.Pipeline, 3)
	lookup := st.Pipeline[0][0].Value.(bson.D)
	assert.Equal(t, bson.A{bson.D{{Key: "$limit", Value: 1}}}, lookup[3].Value)
	assert.Equal(t, bson.D{{Key: "$match", Value: bson.D{{Key: "orders_match", Value: bson.D{{Key: "$ne", Value: bson.A{}}}}}}}, st.Pipeline[1])
}

func TestBuildGroupPipeline(t *testing.T) {
	st := build(t, "SELECT status, COUNT(*) AS n, COUNT(shipped_at) FROM orders GROUP BY status HAVING COUNT(*) > 2")

	require.Len(t, st.Pipeline, 3)
	assert.Equal(t, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: "$status"},
		{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
		{Key: "count_shipped_at", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$gt", Value: bson.A{"$shipped_at", nil}}}, 1, 0,
		}}}}}},
	}}}, st.Pipeline[0])
	assert.Equal(t, bson.D{{Key: "$match", Value: bson.D{{Key: "n", Value: bson.D{{Key: "$gt", Value: int64(2)}}}}}}, st.Pipeline[1])
	assert.Equal(t, bson.D{{Key: "$project", Value: bson.D{
		{Key: "status", Value: "$_id"},
		{Key: "n", Value: 1},
		{Key: "count_shipped_at", Value: 1},
		{Key: "_id", Value: 0},
	}}}, st.Pipeline[2])
}

func TestBuildMutations(t *testing.T) {
	st := build(t, "INSERT INTO users (name, age) VALUES ('Ann', 31), ('Bob', 40)")
	assert.Equal(t, models.KindInsertMany, st.Method)
	assert.Equal(t, []bson.D{
		{{Key: "name", Value: "Ann"}, {Key: "age", Value: int64(31)}},
		{{Key: "name", Value: "Bob"}, {Key: "age", Value: int64(40)}},
	}, st.Documents)

	st = build(t, "UPDATE products SET price = price * 2, stock = stock - 1, name = 'x', seen = NOW() WHERE id = 1")
	assert.False(t, st.UpdatePipeline())
	assert.Equal(t, bson.D{
		{Key: "$set", Value: bson.D{{Key: "name", Value: "x"}}},
		{Key: "$inc", Value: bson.D{{Key: "stock", Value: int64(-1)}}},
		{Key: "$mul", Value: bson.D{{Key: "price", Value: int64(2)}}},
		{Key: "$currentDate", Value: bson.D{{Key: "seen", Value: true}}},
	}, st.Update)

	st = build(t, "UPDATE users SET full_name = CONCAT(first, ' ', last)")
	require.True(t, st.UpdatePipeline())
	assert.Equal(t, []bson.D{{{Key: "$set", Value: bson.D{
		{Key: "full_name", Value: bson.D{{Key: "$concat", Value: bson.A{"$first", " ", "$last"}}}},
	}}}}, st.Update)

	st = build(t, "DELETE FROM orders WHERE status = 'cancelled'")
	assert.Equal(t, bson.D{{Key: "status", Value: "cancelled"}}, st.Filter)
}

func TestResolveDates(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	doc := bson.D{{Key: "created_at", Value: bson.D{
		{Key: "$gte", Value: DateExpr{OffsetMillis: -86400000}},
		{Key: "$lt", Value: DateExpr{DayStart: true}},
	}}}

	got := Resolve(doc, now).(bson.D)
	ops := got[0].Value.(bson.D)
	assert.Equal(t, primitive.NewDateTimeFromTime(now.Add(-24*time.Hour)), ops[0].Value)
	assert.Equal(t, primitive.NewDateTimeFromTime(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)), ops[1].Value)
}
