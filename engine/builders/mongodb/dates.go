package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DateExpr is a date relative to the moment a statement runs. The shell
// renderer prints it as a new Date(...) expression; Resolve pins it to a
// concrete time before a document is sent to a server or encoded as JSON.
type DateExpr struct {
	OffsetMillis int64
	DayStart     bool // midnight UTC of the current day
}

// At evaluates the date against now
func (d DateExpr) At(now time.Time) time.Time {
	t := now.UTC()
	if d.DayStart {
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.Add(time.Duration(d.OffsetMillis) * time.Millisecond)
}

// Resolve returns a copy of v with every DateExpr replaced by a BSON date
func Resolve(v interface{}, now time.Time) interface{} {
	switch x := v.(type) {
	case DateExpr:
		return primitive.NewDateTimeFromTime(x.At(now))
	case bson.D:
		out := make(bson.D, len(x))
		for i, e := range x {
			out[i] = bson.E{Key: e.Key, Value: Resolve(e.Value, now)}
		}
		return out
	case bson.A:
		out := make(bson.A, len(x))
		for i, e := range x {
			out[i] = Resolve(e, now)
		}
		return out
	case []bson.D:
		out := make([]bson.D, len(x))
		for i, e := range x {
			out[i] = Resolve(e, now).(bson.D)
		}
		return out
	}
	return v
}
