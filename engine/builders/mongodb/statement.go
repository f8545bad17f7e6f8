package mongodb

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/querycraft/engine/models"
)

// Statement is one driver call with every argument already built
type Statement struct {
	Collection string
	Method     models.PlanKind

	Filter     bson.D
	Projection bson.D
	Sort       bson.D
	Skip       *int64
	Limit      *int64
	Pipeline   []bson.D
	Key        string // distinct
	Documents  []bson.D
	Update     interface{} // bson.D operator form or []bson.D pipeline form
}

// UpdatePipeline reports whether Update uses the aggregation pipeline form
func (s *Statement) UpdatePipeline() bool {
	_, ok := s.Update.([]bson.D)
	return ok
}

// Build renders a validated plan into a Statement
func Build(plan *models.Plan, opts Options) (*Statement, error) {
	st := &Statement{Collection: plan.Collection, Method: plan.Kind}

	switch plan.Kind {
	case models.KindFind:
		st.Filter = BuildFilter(plan.Filter, opts)
		if !plan.SelectAll {
			st.Projection = BuildProjection(plan.Projection)
		}
		if len(plan.Sort) > 0 {
			st.Sort = BuildSort(plan.Sort)
		}
		st.Skip, st.Limit = plan.Skip, plan.Limit

	case models.KindCount, models.KindDeleteMany:
		st.Filter = BuildFilter(plan.Filter, opts)

	case models.KindDistinct:
		st.Key = plan.DistinctKey
		st.Filter = BuildFilter(plan.Filter, opts)

	case models.KindAggregate:
		st.Pipeline = BuildPipeline(plan, opts)

	case models.KindInsertOne, models.KindInsertMany:
		for _, doc := range plan.Documents {
			st.Documents = append(st.Documents, BuildDocument(doc))
		}

	case models.KindUpdateMany:
		st.Filter = BuildFilter(plan.Filter, opts)
		st.Update = BuildUpdate(plan.Assignments)

	default:
		return nil, fmt.Errorf("cannot build %q statement", plan.Kind)
	}
	return st, nil
}

// ============================================================================
// DOCUMENT BUILDING
// ============================================================================

// BuildDocument renders one inserted document, preserving column order
func BuildDocument(doc models.Document) bson.D {
	out := make(bson.D, len(doc))
	for i, f := range doc {
		out[i] = bson.E{Key: f.Name, Value: Value(f.Value)}
	}
	return out
}

// ============================================================================
// UPDATE BUILDING
// ============================================================================

// BuildUpdate picks the operator form ($set, $inc, $mul, $currentDate) when
// every assignment fits one, and the pipeline form otherwise
func BuildUpdate(assignments []models.Assignment) interface{} {
	var set, inc, mul, now bson.D
	for _, a := range assignments {
		switch {
		case a.Value.Kind == models.OperandDate && a.Value.Date.IsNow():
			now = append(now, bson.E{Key: a.Path, Value: true})
		case a.Value.IsConst():
			set = append(set, bson.E{Key: a.Path, Value: Value(a.Value)})
		default:
			op, n, ok := selfArith(a)
			if !ok {
				return buildPipelineUpdate(assignments)
			}
			if op == "$inc" {
				inc = append(inc, bson.E{Key: a.Path, Value: n})
			} else {
				mul = append(mul, bson.E{Key: a.Path, Value: n})
			}
		}
	}

	update := bson.D{}
	for _, part := range []struct {
		op   string
		body bson.D
	}{{"$set", set}, {"$inc", inc}, {"$mul", mul}, {"$currentDate", now}} {
		if len(part.body) > 0 {
			update = append(update, bson.E{Key: part.op, Value: part.body})
		}
	}
	return update
}

// selfArith matches col = col + n, col = col - n and col = col * n
func selfArith(a models.Assignment) (string, interface{}, bool) {
	v := a.Value
	if v.Kind != models.OperandArith {
		return "", nil, false
	}
	left, right := v.Args[0], v.Args[1]
	if left.Kind != models.OperandField || left.Field.Path != a.Path || right.Kind != models.OperandValue {
		return "", nil, false
	}
	switch n := right.Value.(type) {
	case int64:
		switch v.Op {
		case "+":
			return "$inc", n, true
		case "-":
			return "$inc", -n, true
		case "*":
			return "$mul", n, true
		}
	case float64:
		switch v.Op {
		case "+":
			return "$inc", n, true
		case "-":
			return "$inc", -n, true
		case "*":
			return "$mul", n, true
		}
	}
	return "", nil, false
}

func buildPipelineUpdate(assignments []models.Assignment) []bson.D {
	set := bson.D{}
	for _, a := range assignments {
		set = append(set, bson.E{Key: a.Path, Value: Expression(a.Value)})
	}
	return []bson.D{stage("$set", set)}
}
