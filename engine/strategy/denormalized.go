package strategy

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/models"
)

// Denormalized rewrites a single-join plan to read copied fields instead of
// joining. A to-one join copies the joined columns onto the base documents as
// <singular>_<column>. A to-many join either stores the aggregates as
// precomputed fields on the base documents or, when that is not possible,
// reads the joined collection with the base columns copied onto it.
func Denormalized(plan *models.Plan, opts mongodb.Options) (string, error) {
	p := plan.Clone()
	idx := -1
	for i, j := range p.Joins {
		if !j.Semi {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("denormalized approach: plan has no join")
	}
	j := p.Joins[idx]
	p.Joins = append(p.Joins[:idx:idx], p.Joins[idx+1:]...)
	p.Unset = without(p.Unset, j.As)

	var comment string
	switch {
	case j.ToOne:
		comment = copyOnto(p, j)
	case precomputable(p, j):
		comment = precompute(p, j)
	default:
		comment = pivot(p, j)
	}

	code, err := render(p, opts)
	if err != nil {
		return "", fmt.Errorf("denormalized approach: %w", err)
	}
	return comment + "\n" + code, nil
}

// copiedName names a column copied from table onto another collection
func copiedName(table, path string) string {
	prefix := inflection.Singular(table) + "_"
	name := strings.ReplaceAll(strings.TrimPrefix(path, "_"), ".", "_")
	if strings.HasPrefix(name, prefix) {
		return name
	}
	return prefix + name
}

func baseRef(p *models.Plan) string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Collection
}

func joinRef(j models.JoinSpec) string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.From
}

func copyOnto(p *models.Plan, j models.JoinSpec) string {
	base := baseRef(p)
	rename := func(f models.Field) models.Field {
		if rest, ok := strings.CutPrefix(f.Path, j.As+"."); ok {
			f.Path = copiedName(j.From, rest)
			f.Source = base
		}
		return f
	}
	renamePath := func(path string) string {
		if rest, ok := strings.CutPrefix(path, j.As+"."); ok {
			return copiedName(j.From, rest)
		}
		return path
	}
	mapPreGroup(p, rename, renamePath)
	return fmt.Sprintf("// %s fields are copied onto each %s document as %s_<field>",
		inflection.Singular(j.From), p.Collection, inflection.Singular(j.From))
}

// pivot reads the joined collection, with base columns copied onto it
func pivot(p *models.Plan, j models.JoinSpec) string {
	base, joined, owner := baseRef(p), joinRef(j), p.Collection
	rename := func(f models.Field) models.Field {
		switch f.Source {
		case joined:
			f.Path = strings.TrimPrefix(f.Path, j.As+".")
		case base:
			f.Path = copiedName(owner, f.Path)
		default:
			return f
		}
		f.Source = joined
		return f
	}
	renamePath := func(path string) string {
		if rest, ok := strings.CutPrefix(path, j.As+"."); ok {
			return rest
		}
		if isSemiOutput(p, path) {
			return path
		}
		return copiedName(owner, path)
	}
	mapPreGroup(p, rename, renamePath)
	p.Filter = models.And(p.Filter, p.PostFilter)
	p.PostFilter = nil
	p.Collection, p.Alias = j.From, j.Alias
	return fmt.Sprintf("// %s fields are copied onto each %s document as %s_<field>",
		inflection.Singular(owner), j.From, inflection.Singular(owner))
}

// precomputable reports a grouping over base columns whose aggregates read
// only the joined collection: one stored field per aggregate can replace it
func precomputable(p *models.Plan, j models.JoinSpec) bool {
	if !p.Grouped || p.Distinct || p.PostFilter != nil || len(p.GroupKeys) == 0 {
		return false
	}
	base, joined := baseRef(p), joinRef(j)
	for _, k := range p.GroupKeys {
		if k.Field.Source != base {
			return false
		}
	}
	perDocument := groupedByKey(p, j)
	for _, a := range p.Aggregates {
		// averages of stored averages are not the average
		if a.Func == "AVG" && !perDocument {
			return false
		}
		want := joined
		if a.Func == "FIRST" {
			want = base
		}
		if a.Star {
			continue
		}
		for _, f := range a.Arg.Fields() {
			if f.Source != want {
				return false
			}
		}
	}
	return true
}

// groupedByKey reports a grouping that includes the base join key, so each
// group is exactly one base document
func groupedByKey(p *models.Plan, j models.JoinSpec) bool {
	for _, k := range p.GroupKeys {
		if k.Field.Path == j.LocalField {
			return true
		}
	}
	return false
}

func precompute(p *models.Plan, j models.JoinSpec) string {
	if !groupedByKey(p, j) {
		return regroup(p, j)
	}
	base := baseRef(p)
	post := map[string]models.Field{}
	var stored []string
	for _, k := range p.GroupKeys {
		path := "_id"
		if len(p.GroupKeys) > 1 {
			path = "_id." + k.Name
		}
		post[path] = k.Field
	}
	for _, a := range p.Aggregates {
		if a.Func == "FIRST" {
			post[a.Name] = a.Arg.Field
			continue
		}
		name := copiedName(j.From, a.Name)
		post[a.Name] = models.Field{Source: base, Column: name, Path: name}
		stored = append(stored, name)
	}
	rename := func(f models.Field) models.Field {
		if g, ok := post[f.Path]; ok {
			return g
		}
		return f
	}

	for i, pr := range p.Projection {
		p.Projection[i].Expr = pr.Expr.MapFields(rename)
	}
	for i, s := range p.Sort {
		if g, ok := post[s.Path]; ok {
			p.Sort[i].Path = g.Path
		}
	}
	p.Filter = models.And(p.Filter, p.Having.MapFields(rename))
	p.Having = nil
	p.Grouped = false
	p.GroupKeys = nil
	p.Aggregates = nil
	return fmt.Sprintf("// each %s document stores %s, updated whenever %s changes",
		p.Collection, strings.Join(stored, ", "), j.From)
}

// regroup keeps the grouping and combines the stored per-document values:
// several base documents can share the group keys
func regroup(p *models.Plan, j models.JoinSpec) string {
	base := baseRef(p)
	var stored []string
	for i, a := range p.Aggregates {
		if a.Func == "FIRST" {
			continue
		}
		name := copiedName(j.From, a.Name)
		arg := models.FieldRef(models.Field{Source: base, Column: name, Path: name})
		if a.Func == "COUNT" {
			p.Aggregates[i].Func = "SUM"
		}
		p.Aggregates[i].Star = false
		p.Aggregates[i].Arg = &arg
		stored = append(stored, name)
	}
	return fmt.Sprintf("// each %s document stores %s, updated whenever %s changes; groups combine the stored values",
		p.Collection, strings.Join(stored, ", "), j.From)
}

// mapPreGroup renames fields everywhere they are read before $group; after
// $group only output names remain
func mapPreGroup(p *models.Plan, rename func(models.Field) models.Field, renamePath func(string) string) {
	p.Filter = p.Filter.MapFields(rename)
	p.PostFilter = p.PostFilter.MapFields(rename)
	for i := range p.GroupKeys {
		p.GroupKeys[i].Field = rename(p.GroupKeys[i].Field)
	}
	for i, a := range p.Aggregates {
		if a.Arg != nil {
			arg := a.Arg.MapFields(rename)
			p.Aggregates[i].Arg = &arg
		}
	}
	for i, j := range p.Joins {
		p.Joins[i].LocalField = renamePath(j.LocalField)
		for k, key := range j.ExtraKeys {
			p.Joins[i].ExtraKeys[k].Local = renamePath(key.Local)
		}
	}
	if p.Grouped {
		return
	}
	for i, pr := range p.Projection {
		p.Projection[i].Expr = pr.Expr.MapFields(rename)
	}
	for i, s := range p.Sort {
		p.Sort[i].Path = renamePath(s.Path)
	}
}

func isSemiOutput(p *models.Plan, path string) bool {
	for _, j := range p.Joins {
		if j.Semi && j.As == path {
			return true
		}
	}
	return false
}

func without(list []string, s string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
