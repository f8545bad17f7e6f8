package mongodb

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/mapping"
)

// ============================================================================
// DQL OPERATIONS
// ============================================================================

// BuildPipeline renders a read plan as aggregation stages in clause order:
// base $match, lookups, post-join $match, $group, HAVING, $sort, $skip,
// $limit, then the output shape.
func BuildPipeline(plan *models.Plan, opts Options) []bson.D {
	var pipeline []bson.D

	if plan.Filter != nil {
		pipeline = append(pipeline, stage("$match", BuildFilter(plan.Filter, opts)))
	}
	for _, j := range plan.Joins {
		pipeline = append(pipeline, BuildJoinStages(j, opts)...)
	}
	if plan.PostFilter != nil {
		pipeline = append(pipeline, stage("$match", BuildFilter(plan.PostFilter, opts)))
	}

	if plan.Grouped {
		pipeline = append(pipeline, BuildGroupStage(plan))
		if plan.Having != nil {
			pipeline = append(pipeline, stage("$match", BuildFilter(plan.Having, opts)))
		}
	}

	if len(plan.Sort) > 0 {
		pipeline = append(pipeline, stage("$sort", BuildSort(plan.Sort)))
	}
	if plan.Skip != nil {
		pipeline = append(pipeline, stage("$skip", *plan.Skip))
	}
	if plan.Limit != nil {
		pipeline = append(pipeline, stage("$limit", *plan.Limit))
	}

	switch {
	case plan.Grouped:
		pipeline = append(pipeline, stage("$project", BuildProjection(plan.Projection)))
	case plan.KeepBase:
		if set := buildSet(plan.Projection); len(set) > 0 {
			pipeline = append(pipeline, stage("$set", set))
		}
		pipeline = appendUnset(pipeline, plan.Unset)
	case plan.SelectAll:
		pipeline = appendUnset(pipeline, plan.Unset)
	default:
		pipeline = append(pipeline, stage("$project", BuildProjection(plan.Projection)))
	}
	return pipeline
}

func stage(name string, body interface{}) bson.D {
	return bson.D{{Key: name, Value: body}}
}

func appendUnset(pipeline []bson.D, fields []string) []bson.D {
	switch len(fields) {
	case 0:
		return pipeline
	case 1:
		return append(pipeline, stage("$unset", fields[0]))
	}
	names := make(bson.A, len(fields))
	for i, f := range fields {
		names[i] = f
	}
	return append(pipeline, stage("$unset", names))
}

// BuildJoinStages renders one join: $lookup, then $unwind for row semantics or
// an emptiness $match for an inner join left as an array
func BuildJoinStages(j models.JoinSpec, opts Options) []bson.D {
	var stages []bson.D
	if !j.Embedded {
		stages = append(stages, stage("$lookup", BuildLookup(j, opts)))
	}
	if j.Semi {
		return stages
	}

	switch {
	case j.Unwind && (!j.Embedded || !j.ToOne):
		if j.Kind == models.JoinLeft {
			stages = append(stages, stage("$unwind", bson.D{
				{Key: "path", Value: "$" + j.As},
				{Key: "preserveNullAndEmptyArrays", Value: true},
			}))
		} else {
			stages = append(stages, stage("$unwind", "$"+j.As))
		}
	case j.Kind == models.JoinInner && !j.Embedded:
		stages = append(stages, stage("$match", bson.D{{Key: j.As, Value: bson.D{{Key: "$ne", Value: bson.A{}}}}}))
	}
	return stages
}

// BuildLookup renders the $lookup body. Extra ON keys travel as let
// variables, a subquery filter as a sub-pipeline.
func BuildLookup(j models.JoinSpec, opts Options) bson.D {
	lookup := bson.D{
		{Key: "from", Value: j.From},
		{Key: "localField", Value: j.LocalField},
		{Key: "foreignField", Value: j.ForeignField},
	}

	var sub bson.A
	if len(j.ExtraKeys) > 0 {
		let := bson.D{}
		eqs := bson.A{}
		for i, k := range j.ExtraKeys {
			name := "key" + strconv.Itoa(i+1)
			let = append(let, bson.E{Key: name, Value: "$" + k.Local})
			eqs = append(eqs, bson.D{{Key: "$eq", Value: bson.A{"$" + k.Foreign, "$$" + name}}})
		}
		lookup = append(lookup, bson.E{Key: "let", Value: let})

		var expr interface{} = eqs[0]
		if len(eqs) > 1 {
			expr = bson.D{{Key: "$and", Value: eqs}}
		}
		sub = append(sub, stage("$match", bson.D{{Key: "$expr", Value: expr}}))
	}
	if j.SubFilter != nil {
		sub = append(sub, stage("$match", BuildFilter(j.SubFilter, opts)))
	}
	if j.Semi {
		sub = append(sub, stage("$limit", 1))
	}
	if len(sub) > 0 {
		lookup = append(lookup, bson.E{Key: "pipeline", Value: sub})
	}
	return append(lookup, bson.E{Key: "as", Value: j.As})
}

// BuildGroupStage renders $group: the key document and one accumulator per aggregate
func BuildGroupStage(plan *models.Plan) bson.D {
	var id interface{}
	switch len(plan.GroupKeys) {
	case 0:
		id = nil
	case 1:
		id = "$" + plan.GroupKeys[0].Field.Path
	default:
		keys := bson.D{}
		for _, k := range plan.GroupKeys {
			keys = append(keys, bson.E{Key: k.Name, Value: "$" + k.Field.Path})
		}
		id = keys
	}

	group := bson.D{{Key: "_id", Value: id}}
	for _, a := range plan.Aggregates {
		group = append(group, bson.E{Key: a.Name, Value: BuildAccumulator(a)})
	}
	return stage("$group", group)
}

// BuildAccumulator renders one accumulator. COUNT(col) counts non-null values.
func BuildAccumulator(a models.Aggregate) bson.D {
	if a.Func == "FIRST" {
		return bson.D{{Key: "$first", Value: Expression(*a.Arg)}}
	}
	op := mapping.AggregateFunctions[a.Func]
	if a.Func == "COUNT" {
		if a.Star {
			return bson.D{{Key: op, Value: 1}}
		}
		return bson.D{{Key: op, Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$gt", Value: bson.A{Expression(*a.Arg), nil}}}, 1, 0,
		}}}}}
	}
	return bson.D{{Key: op, Value: Expression(*a.Arg)}}
}

// BuildSort renders a sort document
func BuildSort(keys []models.SortKey) bson.D {
	sort := bson.D{}
	for _, k := range keys {
		dir := 1
		if k.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: k.Path, Value: dir})
	}
	return sort
}

// BuildProjection renders an inclusion projection; _id is excluded unless selected
func BuildProjection(items []models.Projection) bson.D {
	proj := bson.D{}
	hasID := false
	for _, p := range items {
		if p.Name == "_id" {
			hasID = true
		}
		if p.IsPlain() {
			proj = append(proj, bson.E{Key: p.Name, Value: 1})
			continue
		}
		proj = append(proj, bson.E{Key: p.Name, Value: Expression(p.Expr)})
	}
	if !hasID {
		proj = append(proj, bson.E{Key: "_id", Value: 0})
	}
	return proj
}

func buildSet(items []models.Projection) bson.D {
	set := bson.D{}
	for _, p := range items {
		if !p.IsPlain() {
			set = append(set, bson.E{Key: p.Name, Value: Expression(p.Expr)})
		}
	}
	return set
}
