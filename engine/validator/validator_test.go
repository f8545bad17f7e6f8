package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestParseDialect(t *testing.T) {
	tests := map[string]Dialect{
		"":           "",
		"MySQL":      MySQL,
		"postgres":   PostgreSQL,
		" PG ":       PostgreSQL,
		"PostgreSQL": PostgreSQL,
		"mongo":      MongoDB,
	}
	for in, want := range tests {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDialect("oracle")
	assert.Error(t, err)
}

func TestValidateSQL(t *testing.T) {
	valid := "SELECT name FROM users WHERE age > 25 ORDER BY created_at DESC LIMIT 10"
	for _, d := range []Dialect{MySQL, PostgreSQL} {
		t.Run(string(d), func(t *testing.T) {
			assert.NoError(t, Validate(valid, d))

			res, err := ValidateWithDetails("SELECT FROM WHERE", d)
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.NotEmpty(t, res.Error)
			assert.Positive(t, res.Position)
		})
	}
}

func TestValidateMongoDB(t *testing.T) {
	assert.NoError(t, ValidateMongoDB(`{"find": "users", "filter": {"age": {"$gt": 25}}}`))
	assert.NoError(t, ValidateMongoDB(`[{"$match": {"status": "active"}}]`))

	res, err := ValidateMongoDBWithDetails(`{"find": `)
	require.NoError(t, err)
	assert.False(t, res.Valid)

	_, err = ParseMongoDB("   ")
	assert.Error(t, err)

	doc, err := ParseMongoDB(`{"update": "users", "filter": {}, "update": {"$set": {"a": 1}}}`)
	require.NoError(t, err)
	require.Len(t, doc, 3)
	assert.Equal(t, "update", doc[2].Key)
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{{Key: "a", Value: int32(1)}}}}, doc[2].Value)
}

func TestValidateUnknownDialect(t *testing.T) {
	assert.Error(t, Validate("SELECT 1", Dialect("oracle")))
	_, err := ValidateWithDetails("SELECT 1", Dialect("oracle"))
	assert.Error(t, err)
}
