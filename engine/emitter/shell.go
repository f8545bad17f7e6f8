// Package emitter renders built statements as mongosh code, as MongoDB
// command documents, and as the templated prose that accompanies them.
package emitter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/models"
)

// Shell renders a statement as one mongosh expression
func Shell(st *mongodb.Statement) string {
	var b strings.Builder
	b.WriteString(Collection(st.Collection))

	switch st.Method {
	case models.KindFind:
		b.WriteString(".find(")
		b.WriteString(Format(st.Filter))
		if st.Projection != nil {
			b.WriteString(", ")
			b.WriteString(Format(st.Projection))
		}
		b.WriteString(")")
		if st.Sort != nil {
			b.WriteString(".sort(" + Format(st.Sort) + ")")
		}
		if st.Skip != nil {
			b.WriteString(".skip(" + strconv.FormatInt(*st.Skip, 10) + ")")
		}
		if st.Limit != nil {
			b.WriteString(".limit(" + strconv.FormatInt(*st.Limit, 10) + ")")
		}

	case models.KindAggregate:
		b.WriteString(".aggregate(")
		b.WriteString(Pipeline(st.Pipeline))
		b.WriteString(")")

	case models.KindCount:
		b.WriteString(".countDocuments(" + Format(st.Filter) + ")")

	case models.KindDistinct:
		b.WriteString(".distinct(" + Quote(st.Key))
		if len(st.Filter) > 0 {
			b.WriteString(", " + Format(st.Filter))
		}
		b.WriteString(")")

	case models.KindInsertOne:
		b.WriteString(".insertOne(" + Format(st.Documents[0]) + ")")

	case models.KindInsertMany:
		docs := make(bson.A, len(st.Documents))
		for i, d := range st.Documents {
			docs[i] = d
		}
		b.WriteString(".insertMany(" + Format(docs) + ")")

	case models.KindUpdateMany:
		b.WriteString(".updateMany(" + Format(st.Filter) + ", " + Format(st.Update) + ")")

	case models.KindDeleteMany:
		b.WriteString(".deleteMany(" + Format(st.Filter) + ")")
	}
	return b.String()
}

// Collection renders the collection accessor
func Collection(name string) string {
	if IsIdentifier(name) {
		return "db." + name
	}
	return "db.getCollection(" + Quote(name) + ")"
}

// Pipeline renders aggregation stages one per line
func Pipeline(stages []bson.D) string {
	if len(stages) == 0 {
		return "[]"
	}
	lines := make([]string, len(stages))
	for i, s := range stages {
		lines[i] = "  " + Format(s)
	}
	return "[\n" + strings.Join(lines, ",\n") + "\n]"
}

// Format renders a value in mongosh syntax: bare keys where possible,
// JSON-escaped strings, relative dates as new Date(...)
func Format(v interface{}) string {
	var b strings.Builder
	format(&b, v)
	return b.String()
}

func format(b *strings.Builder, v interface{}) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bson.D:
		if len(x) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{ ")
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Key(e.Key))
			b.WriteString(": ")
			format(b, e.Value)
		}
		b.WriteString(" }")
	case bson.M:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := make(bson.D, len(keys))
		for i, k := range keys {
			d[i] = bson.E{Key: k, Value: x[k]}
		}
		format(b, d)
	case bson.A:
		b.WriteString("[")
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, e)
		}
		b.WriteString("]")
	case []bson.D:
		a := make(bson.A, len(x))
		for i, d := range x {
			a[i] = d
		}
		format(b, a)
	case string:
		b.WriteString(Quote(x))
	case bool:
		b.WriteString(strconv.FormatBool(x))
	case int:
		b.WriteString(strconv.Itoa(x))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(x, 'f', -1, 64))
	case mongodb.DateExpr:
		b.WriteString(dateExpr(x))
	case primitive.DateTime:
		b.WriteString(`ISODate("` + x.Time().UTC().Format(time.RFC3339Nano) + `")`)
	case primitive.ObjectID:
		b.WriteString(`ObjectId("` + x.Hex() + `")`)
	default:
		fmt.Fprintf(b, "%v", x)
	}
}

func dateExpr(d mongodb.DateExpr) string {
	base := "Date.now()"
	if d.DayStart {
		base = "new Date(new Date().toISOString().slice(0, 10)).getTime()"
	}
	switch {
	case d.OffsetMillis == 0 && !d.DayStart:
		return "new Date()"
	case d.OffsetMillis == 0:
		return "new Date(new Date().toISOString().slice(0, 10))"
	case d.OffsetMillis < 0:
		return fmt.Sprintf("new Date(%s - %d)", base, -d.OffsetMillis)
	}
	return fmt.Sprintf("new Date(%s + %d)", base, d.OffsetMillis)
}

// Key renders a document key, quoted unless it is an identifier or operator
func Key(k string) string {
	if IsIdentifier(k) || isOperator(k) {
		return k
	}
	return Quote(k)
}

func isOperator(k string) bool {
	return len(k) > 1 && k[0] == '$' && IsIdentifier(k[1:])
}

// IsIdentifier reports a plain JavaScript identifier
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Quote JSON-escapes a string without HTML escaping
func Quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
