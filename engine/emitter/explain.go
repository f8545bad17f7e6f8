package emitter

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/mapping"
)

// NoteOptions carries the translator settings that change the notes
type NoteOptions struct {
	CaseInsensitiveLike bool
	RenameID            bool
}

// ============================================================================
// EXPLANATION
// ============================================================================

// Explain describes how the statement maps onto MongoDB, one sentence per clause
func Explain(plan *models.Plan, st *mongodb.Statement) string {
	var s []string
	c := plan.Collection

	switch plan.Kind {
	case models.KindFind:
		s = append(s, fmt.Sprintf("The SELECT reads the %s collection with find().", c))
		if plan.Filter != nil {
			s = append(s, "The WHERE clause becomes the query filter"+operatorList(plan.Filter)+".")
		}
		for _, j := range plan.Joins {
			s = append(s, joinSentence(j))
		}
		if plan.SelectAll {
			s = append(s, "SELECT * returns whole documents, so no projection is needed.")
		} else {
			s = append(s, "The select list becomes a projection that includes only the requested fields"+idClause(st.Projection)+".")
		}
		s = append(s, cursorSentences(plan)...)

	case models.KindAggregate:
		s = append(s, fmt.Sprintf("The query runs as an aggregation pipeline on the %s collection: %s.", c, stageChain(st.Pipeline)))
		if plan.Filter != nil {
			s = append(s, "WHERE conditions on "+c+" become the first $match"+operatorList(plan.Filter)+", so they can use an index before any join.")
		}
		for _, j := range plan.Joins {
			s = append(s, joinSentence(j))
		}
		if plan.PostFilter != nil {
			s = append(s, "Conditions on joined fields are applied in a $match after the lookups.")
		}
		if plan.Distinct {
			s = append(s, "DISTINCT becomes a $group keyed on the selected columns.")
		} else if plan.Grouped {
			s = append(s, groupSentence(plan))
		}
		if plan.Having != nil {
			s = append(s, "HAVING becomes a $match on the accumulated values after $group.")
		}
		s = append(s, pipelineCursorSentences(plan)...)
		if plan.Grouped {
			s = append(s, "A final $project renames the group keys and accumulators to the SQL column names.")
		} else if plan.KeepBase {
			s = append(s, "Computed columns are added with $set so the rest of each document is kept.")
		} else if !plan.SelectAll {
			s = append(s, "The select list becomes a $project stage.")
		}

	case models.KindCount:
		s = append(s, fmt.Sprintf("SELECT COUNT(*) without grouping maps to countDocuments() on %s.", c))
		if plan.Filter != nil {
			s = append(s, "The WHERE clause becomes its filter"+operatorList(plan.Filter)+".")
		}

	case models.KindDistinct:
		s = append(s, fmt.Sprintf("SELECT DISTINCT on one column maps to distinct(%q) on %s, which returns an array of unique values.", plan.DistinctKey, c))
		if plan.Filter != nil {
			s = append(s, "The WHERE clause becomes its filter"+operatorList(plan.Filter)+".")
		}

	case models.KindInsertOne:
		s = append(s, fmt.Sprintf("INSERT with one row maps to insertOne() on %s; each column becomes a field of the new document.", c))

	case models.KindInsertMany:
		s = append(s, fmt.Sprintf("INSERT with %d rows maps to insertMany() on %s with one document per row.", len(plan.Documents), c))

	case models.KindUpdateMany:
		s = append(s, fmt.Sprintf("UPDATE maps to updateMany() on %s because SQL updates every matching row.", c))
		if plan.Filter != nil {
			s = append(s, "The WHERE clause becomes the filter"+operatorList(plan.Filter)+".")
		}
		s = append(s, updateSentence(st))

	case models.KindDeleteMany:
		s = append(s, fmt.Sprintf("DELETE maps to deleteMany() on %s.", c))
		if plan.Filter != nil {
			s = append(s, "The WHERE clause becomes the filter"+operatorList(plan.Filter)+".")
		}
	}
	return strings.Join(s, " ")
}

func idClause(proj bson.D) string {
	for _, e := range proj {
		if e.Key == "_id" && e.Value == 0 {
			return " and hides _id, which MongoDB returns by default"
		}
	}
	return ""
}

func cursorSentences(plan *models.Plan) []string {
	var s []string
	if len(plan.Sort) > 0 {
		s = append(s, "ORDER BY becomes sort() with 1 for ascending and -1 for descending.")
	}
	if plan.Skip != nil {
		s = append(s, "OFFSET becomes skip().")
	}
	if plan.Limit != nil {
		s = append(s, "LIMIT becomes limit().")
	}
	return s
}

func pipelineCursorSentences(plan *models.Plan) []string {
	var s []string
	if len(plan.Sort) > 0 {
		s = append(s, "ORDER BY becomes a $sort stage.")
	}
	if plan.Skip != nil || plan.Limit != nil {
		s = append(s, "OFFSET and LIMIT become $skip and $limit stages.")
	}
	return s
}

func stageChain(stages []bson.D) string {
	names := make([]string, 0, len(stages))
	for _, st := range stages {
		if len(st) > 0 {
			names = append(names, st[0].Key)
		}
	}
	return strings.Join(names, " → ")
}

func joinSentence(j models.JoinSpec) string {
	if j.Semi {
		return fmt.Sprintf("The IN subquery becomes a $lookup on %s with a sub-pipeline; the emptiness of %s decides whether a document is kept, and the field is dropped from the output.",
			j.From, j.As)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The %s JOIN on %s becomes a $lookup matching %s to %s.%s.",
		strings.ToUpper(string(j.Kind)), j.From, j.LocalField, j.From, j.ForeignField)
	switch {
	case j.Embedded:
		b.Reset()
		fmt.Fprintf(&b, "The %s data is read from the embedded %s field instead of a $lookup.", j.From, j.As)
	case j.ToOne:
		fmt.Fprintf(&b, " The match is at most one document, so $unwind turns the %s array into an embedded object.", j.As)
	case j.Unwind:
		fmt.Fprintf(&b, " $unwind produces one document per matched %s, matching SQL row semantics.", inflection.Singular(j.From))
	default:
		fmt.Fprintf(&b, " The matches stay as an array in %s.", j.As)
	}
	if j.Kind == models.JoinLeft && j.Unwind && !j.Embedded {
		b.WriteString(" preserveNullAndEmptyArrays keeps documents without a match, like LEFT JOIN.")
	}
	return b.String()
}

func groupSentence(plan *models.Plan) string {
	var keys string
	switch len(plan.GroupKeys) {
	case 0:
		keys = "_id: null (one group for the whole input)"
	case 1:
		keys = "_id: \"$" + plan.GroupKeys[0].Field.Path + "\""
	default:
		keys = "a compound _id"
	}
	funcs := []string{}
	seen := map[string]bool{}
	for _, a := range plan.Aggregates {
		if a.Func == "FIRST" || seen[a.Func] {
			continue
		}
		seen[a.Func] = true
		funcs = append(funcs, a.Func+" → "+accumulatorName(a))
	}
	s := "GROUP BY becomes a $group stage with " + keys
	if len(funcs) > 0 {
		s += "; aggregate functions become accumulators (" + strings.Join(funcs, ", ") + ")"
	}
	return s + "."
}

func accumulatorName(a models.Aggregate) string {
	if a.Func == "COUNT" {
		if a.Star {
			return "$sum: 1"
		}
		return "$sum over non-null values"
	}
	return mapping.AggregateFunctions[a.Func]
}

func updateSentence(st *mongodb.Statement) string {
	if st.UpdatePipeline() {
		return "An assignment computed from other fields needs the pipeline form of updateMany(), with a $set stage evaluated per document."
	}
	var ops []string
	for _, e := range st.Update.(bson.D) {
		switch e.Key {
		case "$set":
			ops = append(ops, "$set assigns constant values")
		case "$inc":
			ops = append(ops, "$inc applies col = col ± n atomically")
		case "$mul":
			ops = append(ops, "$mul applies col = col * n atomically")
		case "$currentDate":
			ops = append(ops, "$currentDate stores the server time for NOW()")
		}
	}
	return "SET becomes update operators: " + strings.Join(ops, "; ") + "."
}

// operatorList names the query operators a filter uses, in order of appearance
func operatorList(p *models.Predicate) string {
	var ops []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			ops = append(ops, s)
		}
	}
	walkPredicates(p, func(p *models.Predicate) {
		switch p.Kind {
		case models.PredCompare:
			if p.Op == "$eq" {
				add("= is an equality match")
			} else {
				add(mapping.ReverseComparisons[p.Op] + " → " + p.Op)
			}
		case models.PredIn:
			if p.Negated {
				add("NOT IN → $nin")
			} else {
				add("IN → $in")
			}
		case models.PredLike:
			add("LIKE → $regex")
		case models.PredBetween:
			add("BETWEEN → $gte/$lte")
		case models.PredNull:
			add("IS NULL → null match")
		case models.PredOr:
			add("OR → $or")
		case models.PredNot:
			add("NOT → $nor")
		}
	})
	if len(ops) == 0 {
		return ""
	}
	return " (" + strings.Join(ops, ", ") + ")"
}

func walkPredicates(p *models.Predicate, fn func(*models.Predicate)) {
	if p == nil {
		return
	}
	fn(p)
	for _, c := range p.Children {
		walkPredicates(c, fn)
	}
}
