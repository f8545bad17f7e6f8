package querycraft

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
)

func TestConvert(t *testing.T) {
	res, err := Convert("DELETE FROM orders WHERE status = 'cancelled'")
	require.NoError(t, err)
	assert.Equal(t, `db.orders.deleteMany({ status: "cancelled" })`, res.PrimaryMongoDB)
	assert.NotEmpty(t, res.Explanation)
}

func TestConvertOptions(t *testing.T) {
	res, err := Convert("SELECT name FROM users WHERE id = 5", WithRenameID(true))
	require.NoError(t, err)
	assert.Contains(t, res.PrimaryMongoDB, "_id: 5")

	_, err = Convert("SELECT a, b, c FROM t", WithMaxTokens(3))
	var tooLarge *InputTooLarge
	assert.True(t, errors.As(err, &tooLarge), "%v", err)
}

func TestConvertErrors(t *testing.T) {
	_, err := Convert("WITH recent AS (SELECT * FROM orders) SELECT * FROM recent")
	var unsupported *UnsupportedFeature
	require.True(t, errors.As(err, &unsupported), "%v", err)

	_, err = Convert("SELECT name FROM orders o JOIN customers c ON o.customer_id = c.id")
	var ambiguous *AmbiguousColumn
	require.True(t, errors.As(err, &ambiguous), "%v", err)
	assert.Equal(t, "name", ambiguous.Column)
}

func TestTranslatorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(DefaultConfig()).Convert(ctx, Request{SQL: "SELECT * FROM users"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvertToSQL(t *testing.T) {
	res, err := ConvertToSQL(`[{"$match": {"status": "active"}}, {"$count": "n"}]`, WithCollection("users"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM users WHERE status = 'active'", res.SQL)

	_, err = ConvertToSQL(`{"mapReduce": "users"}`)
	assert.ErrorIs(t, err, ErrNotSupported)

	_, err = ConvertToSQL("")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("SELECT name FROM users", MySQL))
	assert.Error(t, Validate("SELECT FROM WHERE", PostgreSQL))
}

func TestClientTranslationError(t *testing.T) {
	_, err := WrapMongo(nil).Query(context.Background(), "SELECT ROW_NUMBER() OVER (ORDER BY id) FROM t")
	var unsupported *UnsupportedFeature
	assert.True(t, errors.As(err, &unsupported), "%v", err)
}

func TestResolveUpdate(t *testing.T) {
	now := time.Date(2025, 11, 19, 15, 4, 5, 0, time.UTC)
	at := primitive.NewDateTimeFromTime(now)

	ops := bson.D{{Key: "$set", Value: bson.D{{Key: "seen", Value: mongodb.DateExpr{}}}}}
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{{Key: "seen", Value: at}}}}, resolveUpdate(ops, now))

	stages := []bson.D{{{Key: "$set", Value: bson.D{{Key: "n", Value: 1}}}}}
	got := resolveUpdate(stages, now)
	require.IsType(t, mongo.Pipeline{}, got)
	assert.Len(t, got, 1)

	assert.Equal(t, bson.D{}, resolveDoc(nil, now))
}
