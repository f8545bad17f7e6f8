package strategy

import (
	"strconv"
	"strings"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/emitter"
	"github.com/omniql-engine/querycraft/engine/models"
)

// ApplicationJoin fetches every collection with its own query, keyed by the
// values read from the previous results, and stitches the documents together
// in application code.
func ApplicationJoin(plan *models.Plan, opts mongodb.Options) string {
	vars := map[string]bool{}
	declare := func(name string) string {
		v := identifier(name)
		candidate := v
		for i := 2; vars[candidate]; i++ {
			candidate = v + strconv.Itoa(i)
		}
		vars[candidate] = true
		return candidate
	}

	var lines []string
	base := declare(plan.Collection)
	lines = append(lines, "const "+base+" = "+baseQuery(plan, opts)+";")

	type fetched struct {
		name   string
		source string
		local  string
		join   models.JoinSpec
	}
	var joins []fetched
	for _, j := range plan.Joins {
		if j.Semi {
			continue
		}
		f := fetched{name: declare(j.As + "Docs"), source: base, local: j.LocalField, join: j}
		for _, prev := range joins {
			if rest, ok := strings.CutPrefix(j.LocalField, prev.join.As+"."); ok {
				f.source, f.local = prev.name, rest
			}
		}
		filter := "{ " + emitter.Key(j.ForeignField) + ": { $in: " + f.source + ".map(d => " + accessor("d", f.local) + ") } }"
		lines = append(lines, "const "+f.name+" = "+emitter.Collection(j.From)+".find("+filter+").toArray();")
		joins = append(joins, f)
	}

	lines = append(lines, "// stitch the results together by key")
	for _, f := range joins {
		index := f.name + "ByKey"
		foreign := "String(" + accessor("d", f.join.ForeignField) + ")"
		local := "String(" + accessor("d", f.local) + ")"
		if f.join.ToOne {
			lines = append(lines,
				"const "+index+" = new Map("+f.name+".map(d => ["+foreign+", d]));",
				"for (const d of "+f.source+") d"+member(f.join.As)+" = "+index+".get("+local+") ?? null;")
			continue
		}
		lines = append(lines,
			"const "+index+" = new Map();",
			f.name+".forEach(d => "+index+".set("+foreign+", [...("+index+".get("+foreign+") || []), d]));",
			"for (const d of "+f.source+") d"+member(f.join.As)+" = "+index+".get("+local+") || [];")
	}

	var keep []string
	for _, f := range joins {
		if f.join.Kind != models.JoinInner || f.source != base {
			continue
		}
		if f.join.ToOne {
			keep = append(keep, "d"+member(f.join.As)+" !== null")
		} else {
			keep = append(keep, "d"+member(f.join.As)+".length > 0")
		}
	}
	result := "const result = " + base
	if len(keep) > 0 {
		result += ".filter(d => " + strings.Join(keep, " && ") + ")"
	}
	lines = append(lines, result+";")
	if !baseOnlyCursor(plan) || plan.PostFilter != nil || plan.Grouped || !plan.SelectAll {
		lines = append(lines, "// apply the remaining conditions, grouping, projection and ordering to result")
	}
	return strings.Join(lines, "\n")
}

// baseQuery reads the base collection; cursor options are kept only when
// they depend on base fields alone
func baseQuery(plan *models.Plan, opts mongodb.Options) string {
	q := emitter.Collection(plan.Collection) + ".find(" + emitter.Format(mongodb.BuildFilter(plan.Filter, opts)) + ")"
	if baseOnlyCursor(plan) {
		if len(plan.Sort) > 0 {
			q += ".sort(" + emitter.Format(mongodb.BuildSort(plan.Sort)) + ")"
		}
		if plan.Skip != nil {
			q += ".skip(" + strconv.FormatInt(*plan.Skip, 10) + ")"
		}
		if plan.Limit != nil {
			q += ".limit(" + strconv.FormatInt(*plan.Limit, 10) + ")"
		}
	}
	return q + ".toArray()"
}

func baseOnlyCursor(plan *models.Plan) bool {
	if plan.Grouped || plan.Distinct || plan.PostFilter != nil {
		return false
	}
	for _, j := range plan.Joins {
		if j.Semi {
			return false
		}
		if j.Kind == models.JoinInner && (plan.Skip != nil || plan.Limit != nil) {
			return false
		}
		for _, s := range plan.Sort {
			if strings.HasPrefix(s.Path, j.As+".") {
				return false
			}
		}
	}
	return true
}

func accessor(v, path string) string {
	out := v
	for _, seg := range strings.Split(path, ".") {
		out += member(seg)
	}
	return out
}

func member(name string) string {
	if emitter.IsIdentifier(name) {
		return "." + name
	}
	return "[" + emitter.Quote(name) + "]"
}

func identifier(name string) string {
	var b strings.Builder
	upper := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			if upper {
				r = []rune(strings.ToUpper(string(r)))[0]
				upper = false
			}
			b.WriteRune(r)
		default:
			upper = b.Len() > 0
		}
	}
	s := b.String()
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "docs" + s
	}
	return s
}
