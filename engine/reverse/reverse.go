// Package reverse converts MongoDB commands and aggregation pipelines back
// into MySQL statements. Every statement it produces is parsed again with the
// TiDB MySQL parser before it is returned.
package reverse

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/engine/validator"
)

// ============================================================================
// ERRORS
// ============================================================================

var (
	ErrNotSupported = errors.New("feature has no SQL equivalent")
	ErrParse        = errors.New("failed to parse MongoDB query")
	ErrEmptyQuery   = errors.New("empty query")
)

// DefaultCollection names the table of a bare pipeline when the caller gives none
const DefaultCollection = "collection"

// Options tune the conversion
type Options struct {
	// Collection names the source of a bare pipeline ([...]) or of an
	// aggregate command without a collection
	Collection string
}

// ============================================================================
// MAIN INTERFACE
// ============================================================================

// ToSQL converts a MongoDB command in Extended JSON, or a bare aggregation
// pipeline, to a MySQL statement.
func ToSQL(query string, opts Options) (*models.ReverseResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	doc, err := validator.ParseMongoDB(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return CommandToSQL(doc, opts)
}

// CommandToSQL converts a decoded command document. The first key names the
// command, as in the MongoDB wire protocol; the shell method names
// (insertOne, updateMany, deleteOne...) are accepted too.
func CommandToSQL(cmd bson.D, opts Options) (*models.ReverseResult, error) {
	if len(cmd) == 0 {
		return nil, ErrEmptyQuery
	}
	c := newConverter()

	var (
		sql  string
		kind string
		err  error
	)
	name := cmd[0].Key
	switch name {
	case "find":
		sql, err = c.find(cmd)
		kind = "select"
	case "aggregate", "pipeline":
		sql, err = c.aggregate(cmd, opts)
		kind = "select"
	case "count", "countDocuments":
		sql, err = c.count(cmd)
		kind = "select"
	case "distinct":
		sql, err = c.distinct(cmd)
		kind = "select"
	case "insert", "insertOne", "insertMany":
		sql, err = c.insert(cmd)
		kind = "insert"
	case "update", "updateOne", "updateMany", "replaceOne":
		sql, err = c.update(cmd)
		kind = "update"
	case "delete", "deleteOne", "deleteMany":
		sql, err = c.delete(cmd)
		kind = "delete"
	default:
		return nil, fmt.Errorf("%w: command %q", ErrNotSupported, name)
	}
	if err != nil {
		return nil, err
	}
	if err := checkSQL(sql, kind); err != nil {
		return nil, err
	}

	notes := c.notes
	if len(notes) == 0 {
		notes = []string{"The translation is direct; results match the MongoDB query."}
	}
	return &models.ReverseResult{
		SQL:         sql,
		Explanation: strings.Join(c.explain, " "),
		Notes:       notes,
	}, nil
}

// ============================================================================
// CONVERTER STATE
// ============================================================================

type converter struct {
	table   string
	qualify bool
	lookups []*join
	vars    map[string]string
	notes   []string
	explain []string
}

func newConverter() *converter {
	return &converter{vars: map[string]string{"NOW": "NOW()"}}
}

func (c *converter) note(s string) {
	for _, n := range c.notes {
		if n == s {
			return
		}
	}
	c.notes = append(c.notes, s)
}

func (c *converter) say(format string, args ...interface{}) {
	s := fmt.Sprintf(format, args...)
	for _, e := range c.explain {
		if e == s {
			return
		}
	}
	c.explain = append(c.explain, s)
}

// lookup returns the join whose output array is named as
func (c *converter) lookup(as string) *join {
	for _, j := range c.lookups {
		if j.alias == as {
			return j
		}
	}
	return nil
}

// column renders a document path read before any $group or $project
func (c *converter) column(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty field path", ErrParse)
	}
	for _, j := range c.lookups {
		if path == j.alias {
			return "", fmt.Errorf("%w: the joined array %s cannot be read as a single column", ErrNotSupported, path)
		}
		if rest, ok := strings.CutPrefix(path, j.alias+"."); ok {
			return ident(j.alias) + "." + c.ident(rest), nil
		}
	}
	if c.qualify {
		return ident(c.table) + "." + c.ident(path), nil
	}
	return c.ident(path), nil
}

// ident quotes a column, noting when a dotted path is read as one column
func (c *converter) ident(name string) string {
	if strings.Contains(name, ".") {
		c.note("Dotted paths into embedded documents become single column names; flatten them into columns or a JSON column with JSON_EXTRACT.")
	}
	return ident(name)
}

// ============================================================================
// COMMAND FIELDS
// ============================================================================

func field(doc bson.D, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		for _, e := range doc {
			if e.Key == k {
				return e.Value, true
			}
		}
	}
	return nil, false
}

func collectionName(cmd bson.D) (string, error) {
	name, ok := cmd[0].Value.(string)
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %s expects a collection name", ErrParse, cmd[0].Key)
	}
	return name, nil
}

func document(v interface{}, what string) (bson.D, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case bson.D:
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a document", ErrParse, what)
	}
}

func array(v interface{}, what string) (bson.A, error) {
	a, ok := v.(bson.A)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be an array", ErrParse, what)
	}
	return a, nil
}

func integer(v interface{}, what string) (int64, error) {
	switch n := v.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be an integer", ErrParse, what)
}

// truthy reads projection and option flags: true or any non-zero number
func truthy(v interface{}) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int32:
		return x != 0, true
	case int64:
		return x != 0, true
	case float64:
		return x != 0, true
	}
	return false, false
}
