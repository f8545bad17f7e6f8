package querycraft

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/models"
)

// Client runs SQL against a MongoDB database by translating each statement
// and calling the matching driver method
type Client struct {
	db  *mongo.Database
	tr  *Translator
	now func() time.Time
}

// WrapMongo wraps a MongoDB database connection
func WrapMongo(db *mongo.Database, opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{db: db, tr: New(cfg), now: time.Now}
}

// Query translates sql and executes it. Reads return the matching documents;
// writes return a single row with the affected counts. Relative dates such as
// NOW() are pinned to the moment of the call.
func (c *Client) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	compiled, err := c.tr.tr.Compile(sql)
	if err != nil {
		return nil, fmt.Errorf("translation error: %w", err)
	}
	return c.run(ctx, compiled.Statement)
}

func (c *Client) run(ctx context.Context, st *mongodb.Statement) ([]map[string]any, error) {
	now := c.now()
	coll := c.db.Collection(st.Collection)
	filter := resolveDoc(st.Filter, now)

	switch st.Method {
	case models.KindFind:
		return c.find(ctx, coll, filter, st)

	case models.KindAggregate:
		cursor, err := coll.Aggregate(ctx, resolvePipeline(st.Pipeline, now))
		if err != nil {
			return nil, fmt.Errorf("aggregate error: %w", err)
		}
		return drain(ctx, cursor)

	case models.KindCount:
		count, err := coll.CountDocuments(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("count error: %w", err)
		}
		return []map[string]any{{"count": count}}, nil

	case models.KindDistinct:
		values, err := coll.Distinct(ctx, st.Key, filter)
		if err != nil {
			return nil, fmt.Errorf("distinct error: %w", err)
		}
		rows := make([]map[string]any, len(values))
		for i, v := range values {
			rows[i] = map[string]any{st.Key: v}
		}
		return rows, nil

	case models.KindInsertOne, models.KindInsertMany:
		docs := make([]interface{}, len(st.Documents))
		for i, d := range st.Documents {
			docs[i] = resolveDoc(d, now)
		}
		result, err := coll.InsertMany(ctx, docs)
		if err != nil {
			return nil, fmt.Errorf("insert error: %w", err)
		}
		return []map[string]any{{
			"inserted_ids":  result.InsertedIDs,
			"rows_affected": len(result.InsertedIDs),
		}}, nil

	case models.KindUpdateMany:
		result, err := coll.UpdateMany(ctx, filter, resolveUpdate(st.Update, now))
		if err != nil {
			return nil, fmt.Errorf("update error: %w", err)
		}
		return []map[string]any{{
			"rows_matched":  result.MatchedCount,
			"rows_affected": result.ModifiedCount,
		}}, nil

	case models.KindDeleteMany:
		result, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("delete error: %w", err)
		}
		return []map[string]any{{
			"rows_affected": result.DeletedCount,
		}}, nil
	}
	return nil, fmt.Errorf("unsupported MongoDB operation: %s", st.Method)
}

func (c *Client) find(ctx context.Context, coll *mongo.Collection, filter bson.D, st *mongodb.Statement) ([]map[string]any, error) {
	opts := options.Find()
	if st.Projection != nil {
		opts.SetProjection(st.Projection)
	}
	if st.Sort != nil {
		opts.SetSort(st.Sort)
	}
	if st.Skip != nil {
		opts.SetSkip(*st.Skip)
	}
	if st.Limit != nil {
		opts.SetLimit(*st.Limit)
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find error: %w", err)
	}
	return drain(ctx, cursor)
}

func drain(ctx context.Context, cursor *mongo.Cursor) ([]map[string]any, error) {
	defer cursor.Close(ctx)

	var results []map[string]any
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		results = append(results, bsonToMap(doc))
	}
	return results, cursor.Err()
}

func resolveDoc(d bson.D, now time.Time) bson.D {
	if d == nil {
		return bson.D{}
	}
	return mongodb.Resolve(d, now).(bson.D)
}

func resolvePipeline(stages []bson.D, now time.Time) mongo.Pipeline {
	return mongo.Pipeline(mongodb.Resolve(stages, now).([]bson.D))
}

// resolveUpdate returns an operator document or, for the pipeline form, a
// mongo.Pipeline
func resolveUpdate(update interface{}, now time.Time) interface{} {
	if stages, ok := update.([]bson.D); ok {
		return resolvePipeline(stages, now)
	}
	return mongodb.Resolve(update, now)
}

func bsonToMap(doc bson.M) map[string]any {
	result := make(map[string]any, len(doc))
	for k, v := range doc {
		result[k] = v
	}
	return result
}
