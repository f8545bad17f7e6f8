package emitter

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/models"
)

// Command renders a statement as a database command document, with relative
// dates pinned to now
func Command(st *mongodb.Statement, now time.Time) (bson.D, error) {
	var cmd bson.D
	switch st.Method {
	case models.KindFind:
		cmd = bson.D{{Key: "find", Value: st.Collection}, {Key: "filter", Value: st.Filter}}
		if st.Projection != nil {
			cmd = append(cmd, bson.E{Key: "projection", Value: st.Projection})
		}
		if st.Sort != nil {
			cmd = append(cmd, bson.E{Key: "sort", Value: st.Sort})
		}
		if st.Skip != nil {
			cmd = append(cmd, bson.E{Key: "skip", Value: *st.Skip})
		}
		if st.Limit != nil {
			cmd = append(cmd, bson.E{Key: "limit", Value: *st.Limit})
		}

	case models.KindAggregate:
		stages := make(bson.A, len(st.Pipeline))
		for i, s := range st.Pipeline {
			stages[i] = s
		}
		cmd = bson.D{
			{Key: "aggregate", Value: st.Collection},
			{Key: "pipeline", Value: stages},
			{Key: "cursor", Value: bson.D{}},
		}

	case models.KindCount:
		cmd = bson.D{{Key: "count", Value: st.Collection}, {Key: "query", Value: st.Filter}}

	case models.KindDistinct:
		cmd = bson.D{{Key: "distinct", Value: st.Collection}, {Key: "key", Value: st.Key}, {Key: "query", Value: st.Filter}}

	case models.KindInsertOne, models.KindInsertMany:
		docs := make(bson.A, len(st.Documents))
		for i, d := range st.Documents {
			docs[i] = d
		}
		cmd = bson.D{{Key: "insert", Value: st.Collection}, {Key: "documents", Value: docs}}

	case models.KindUpdateMany:
		cmd = bson.D{{Key: "update", Value: st.Collection}, {Key: "updates", Value: bson.A{
			bson.D{{Key: "q", Value: st.Filter}, {Key: "u", Value: st.Update}, {Key: "multi", Value: true}},
		}}}

	case models.KindDeleteMany:
		cmd = bson.D{{Key: "delete", Value: st.Collection}, {Key: "deletes", Value: bson.A{
			bson.D{{Key: "q", Value: st.Filter}, {Key: "limit", Value: 0}},
		}}}

	default:
		return nil, fmt.Errorf("no command form for %q", st.Method)
	}
	return mongodb.Resolve(cmd, now).(bson.D), nil
}

// CommandJSON renders the command document as relaxed Extended JSON
func CommandJSON(st *mongodb.Statement, now time.Time) (string, error) {
	cmd, err := Command(st, now)
	if err != nil {
		return "", err
	}
	out, err := bson.MarshalExtJSON(cmd, false, false)
	if err != nil {
		return "", fmt.Errorf("encode command: %w", err)
	}
	return string(out), nil
}
