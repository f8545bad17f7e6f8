package emitter

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/models"
)

// ============================================================================
// NOTES
// ============================================================================

// Notes lists the behavioral differences and operational advice for a statement
func Notes(plan *models.Plan, st *mongodb.Statement, opts NoteOptions) []string {
	notes := append([]string{}, plan.Warnings...)

	switch n := plan.JoinCount(); {
	case n >= 2:
		notes = append(notes, fmt.Sprintf(
			"The query joins %d collections; each JOIN adds a $lookup stage, so the work grows linearly with the number of joins. Embed or denormalize the paths that are read most often.", n+1))
	case n == 1:
		notes = append(notes, "$lookup is a left outer join; INNER JOIN semantics come from $unwind without preserveNullAndEmptyArrays or from a $match on a non-empty array.")
	}
	for _, j := range plan.Joins {
		if !j.Embedded && j.ForeignField != "_id" {
			notes = append(notes, fmt.Sprintf("Index %s.%s so each $lookup resolves with an index seek instead of a collection scan.", j.From, j.ForeignField))
		}
	}

	if idx := indexSuggestion(plan); idx != nil {
		notes = append(notes, "An index on "+Format(idx)+" supports this query (equality fields first, then sort fields, then ranges).")
	}

	var leadingWildcard, like, null, dates, count bool
	preds := []*models.Predicate{plan.Filter, plan.PostFilter, plan.Having}
	for _, j := range plan.Joins {
		preds = append(preds, j.SubFilter)
	}
	for _, p := range preds {
		walkPredicates(p, func(p *models.Predicate) {
			switch p.Kind {
			case models.PredLike:
				like = true
				leadingWildcard = leadingWildcard || strings.HasPrefix(p.Pattern, "%")
			case models.PredNull:
				null = true
			}
			for _, o := range append([]models.Operand{p.Left, p.Right, p.Low, p.High}, p.Values...) {
				dates = dates || hasDate(o)
			}
		})
	}
	for _, a := range plan.Assignments {
		dates = dates || (hasDate(a.Value) && !a.Value.Date.IsNow())
	}
	for _, a := range plan.Aggregates {
		count = count || (a.Func == "COUNT" && !a.Star)
	}

	if like {
		if leadingWildcard {
			notes = append(notes, "A LIKE pattern starting with % compiles to an unanchored regex, which cannot use an index and scans every document.")
		}
		if opts.CaseInsensitiveLike {
			notes = append(notes, "LIKE matches case-insensitively through $options: \"i\".")
		} else {
			notes = append(notes, "The generated regex is case-sensitive, while MySQL's default collation compares LIKE case-insensitively; enable case-insensitive LIKE to add $options: \"i\".")
		}
	}
	if null {
		notes = append(notes, "A null match also selects documents where the field is missing, which SQL has no equivalent for.")
	}
	if dates {
		notes = append(notes, "NOW() and INTERVAL arithmetic are evaluated by the client when the statement runs, not by the server.")
	}
	if count {
		notes = append(notes, "COUNT(column) counts only documents where the field exists and is not null.")
	}
	if !opts.RenameID && usesID(plan) {
		notes = append(notes, "The id column is kept as a regular field; MongoDB's primary key is _id. Enable id renaming if your documents use _id.")
	}
	if plan.Limit != nil && len(plan.Sort) == 0 {
		notes = append(notes, "LIMIT without ORDER BY returns an unspecified subset of documents, as in SQL.")
	}

	switch plan.Kind {
	case models.KindDistinct:
		notes = append(notes, "distinct() returns a single array, which must fit in one 16 MB document; use an aggregation $group for very large result sets.")
	case models.KindInsertOne:
		notes = append(notes, "MongoDB adds an ObjectId _id when the document has none.")
	case models.KindInsertMany:
		notes = append(notes, "insertMany() stops at the first error unless { ordered: false } is passed.")
	case models.KindUpdateMany:
		if st.UpdatePipeline() {
			notes = append(notes, "The pipeline form of updateMany() requires MongoDB 4.2 or later.")
		}
	}

	if len(notes) == 0 {
		notes = append(notes, "The translation is direct; results match the SQL statement.")
	}
	return notes
}

func hasDate(o models.Operand) bool {
	if o.Kind == models.OperandDate {
		return true
	}
	for _, a := range o.Args {
		if hasDate(a) {
			return true
		}
	}
	return false
}

func usesID(plan *models.Plan) bool {
	for _, p := range []*models.Predicate{plan.Filter, plan.PostFilter} {
		for _, f := range p.Fields() {
			if f.Path == "id" {
				return true
			}
		}
	}
	for _, p := range plan.Projection {
		if p.Name == "id" {
			return true
		}
	}
	for _, j := range plan.Joins {
		if j.ForeignField == "id" || j.LocalField == "id" {
			return true
		}
	}
	return false
}

// indexSuggestion orders base-filter fields by the equality, sort, range rule
func indexSuggestion(plan *models.Plan) bson.D {
	if plan.Kind.IsMutation() && plan.Kind != models.KindUpdateMany && plan.Kind != models.KindDeleteMany {
		return nil
	}
	var equality, ranges []string
	for _, c := range plan.Filter.Conjuncts() {
		if c.Left.Kind != models.OperandField {
			continue
		}
		path := c.Left.Field.Path
		switch c.Kind {
		case models.PredCompare:
			if !c.Right.IsConst() || c.Op == "$ne" {
				continue
			}
			if c.Op == "$eq" {
				equality = append(equality, path)
			} else {
				ranges = append(ranges, path)
			}
		case models.PredIn:
			if !c.Negated {
				equality = append(equality, path)
			}
		case models.PredBetween:
			if !c.Negated {
				ranges = append(ranges, path)
			}
		case models.PredLike:
			if !c.Negated && !strings.HasPrefix(c.Pattern, "%") {
				ranges = append(ranges, path)
			}
		}
	}

	idx := bson.D{}
	seen := map[string]bool{}
	add := func(path string, dir int) {
		if !seen[path] {
			seen[path] = true
			idx = append(idx, bson.E{Key: path, Value: dir})
		}
	}
	for _, p := range equality {
		add(p, 1)
	}
	if !plan.Grouped && !plan.HasJoins() {
		for _, s := range plan.Sort {
			if s.Desc {
				add(s.Path, -1)
			} else {
				add(s.Path, 1)
			}
		}
	}
	for _, p := range ranges {
		add(p, 1)
	}
	if len(idx) == 0 || (len(idx) == 1 && idx[0].Key == "_id") {
		return nil
	}
	return idx
}

// ============================================================================
// SCHEMA SUGGESTIONS
// ============================================================================

// SchemaSuggestions advises on document design for joins, grouping and
// subqueries; it is empty for simple statements
func SchemaSuggestions(plan *models.Plan) string {
	var s []string
	owner := inflection.Singular(plan.Collection)

	for _, j := range plan.Joins {
		if j.Semi {
			s = append(s, fmt.Sprintf(
				"If the IN subquery on %s runs often, store the matching flag or id list on each %s document to avoid the lookup.", j.From, owner))
			continue
		}
		if j.ToOne {
			s = append(s, fmt.Sprintf(
				"Embed %s as a sub-document of each %s when it is read together with it and rarely changes; keep %s as a separate collection referenced by %s when it is shared or updated often.",
				inflection.Singular(j.From), owner, j.From, j.LocalField))
		} else {
			s = append(s, fmt.Sprintf(
				"Store %s as an array inside each %s only while the array stays bounded (documents are limited to 16 MB); otherwise keep the reference in %s.%s and index it.",
				j.From, owner, j.From, j.ForeignField))
		}
	}
	if plan.Grouped && !plan.Distinct {
		s = append(s, fmt.Sprintf(
			"If this aggregation backs a dashboard, maintain a summary collection with $merge or update counters on write instead of grouping %s on every read.", plan.Collection))
	}
	return strings.Join(s, " ")
}
