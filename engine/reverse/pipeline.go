package reverse

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/omniql-engine/querycraft/mapping"
)

// pipeline folds aggregation stages into one SELECT. Stages that would need
// a derived table (a second $group, $match after $limit) are rejected.
type pipeline struct {
	c *converter
	q *selectQuery

	grouped    bool
	restricted bool
	outputs    map[string]string
	aliases    map[string]bool
	keyCols    []string
	sized      []*join
}

func (c *converter) aggregate(cmd bson.D, opts Options) (string, error) {
	table := opts.Collection
	if name, ok := cmd[0].Value.(string); ok && cmd[0].Key == "aggregate" && name != "" {
		table = name
	}

	v, ok := field(cmd, "pipeline")
	if !ok {
		return "", fmt.Errorf("%w: aggregate expects a pipeline", ErrParse)
	}
	stages, err := array(v, "pipeline")
	if err != nil {
		return "", err
	}

	if table == "" {
		if table = collectionFromLookup(stages); table != "" {
			c.note(fmt.Sprintf("The pipeline does not name its collection; %s is inferred from the $lookup keys.", table))
		} else {
			table = DefaultCollection
			c.note(fmt.Sprintf("The pipeline does not name its collection; replace %s with the source table.", DefaultCollection))
		}
	}
	c.table = table

	p := &pipeline{c: c, q: &selectQuery{from: table}, aliases: map[string]bool{}}
	for _, s := range stages {
		if d, ok := s.(bson.D); ok && len(d) == 1 && d[0].Key == "$lookup" {
			c.qualify = true
		}
	}
	c.say("The pipeline on %s becomes one SELECT; each stage maps onto a clause in order.", table)

	for i, s := range stages {
		d, ok := s.(bson.D)
		if !ok || len(d) != 1 {
			return "", fmt.Errorf("%w: stage %d must be a document with one operator", ErrParse, i+1)
		}
		if err := p.stage(d[0].Key, d[0].Value); err != nil {
			return "", err
		}
	}
	return p.finish(), nil
}

// collectionFromLookup guesses the source collection from the first $lookup
// that joins its _id to a <name>_id foreign key: user_id names users.
func collectionFromLookup(stages bson.A) string {
	for _, s := range stages {
		d, ok := s.(bson.D)
		if !ok || len(d) != 1 || d[0].Key != "$lookup" {
			continue
		}
		spec, ok := d[0].Value.(bson.D)
		if !ok {
			return ""
		}
		local, _ := field(spec, "localField")
		foreign, _ := field(spec, "foreignField")
		l, _ := local.(string)
		f, _ := foreign.(string)
		if l != "_id" && l != "id" {
			return ""
		}
		name := strings.TrimSuffix(f, "_id")
		if name == "" || name == f || strings.Contains(name, ".") {
			return ""
		}
		return inflection.Plural(name)
	}
	return ""
}

func (p *pipeline) stage(op string, body interface{}) error {
	switch op {
	case "$match":
		d, err := document(body, op)
		if err != nil {
			return err
		}
		return p.match(d)
	case "$group":
		d, err := document(body, op)
		if err != nil {
			return err
		}
		return p.group(d)
	case "$project":
		d, err := document(body, op)
		if err != nil {
			return err
		}
		return p.project(d)
	case "$set", "$addFields":
		d, err := document(body, op)
		if err != nil {
			return err
		}
		return p.addFields(d)
	case "$unset":
		return p.unset(body)
	case "$sort":
		d, err := document(body, op)
		if err != nil {
			return err
		}
		return p.sort(d)
	case "$skip":
		n, err := integer(body, op)
		if err != nil {
			return err
		}
		p.q.applySkip(n)
		p.c.say("$skip and $limit become LIMIT and OFFSET.")
		return nil
	case "$limit":
		n, err := integer(body, op)
		if err != nil {
			return err
		}
		p.q.applyLimit(n)
		p.c.say("$skip and $limit become LIMIT and OFFSET.")
		return nil
	case "$count":
		name, ok := body.(string)
		if !ok || name == "" {
			return fmt.Errorf("%w: $count expects an output name", ErrParse)
		}
		return p.count(name)
	case "$lookup":
		d, err := document(body, op)
		if err != nil {
			return err
		}
		return p.lookup(d)
	case "$unwind":
		return p.unwind(body)
	}
	return fmt.Errorf("%w: pipeline stage %s", ErrNotSupported, op)
}

// ref resolves a path against the output of the previous stages
func (p *pipeline) ref(path string) (string, error) {
	if e, ok := p.outputs[path]; ok {
		return e, nil
	}
	if p.restricted {
		return "", fmt.Errorf("%w: field %s is not produced by the preceding stages", ErrParse, path)
	}
	return p.c.column(path)
}

func (p *pipeline) limited() bool {
	return p.q.limit != nil || p.q.offset != nil
}

// ============================================================================
// STAGES
// ============================================================================

func (p *pipeline) match(d bson.D) error {
	if p.limited() {
		return fmt.Errorf("%w: $match after $limit or $skip needs a derived table", ErrNotSupported)
	}
	var rest bson.D
	for _, e := range d {
		if j := p.c.lookup(e.Key); j != nil && !j.dropped {
			if p.arrayTest(j, e.Value) {
				continue
			}
		}
		rest = append(rest, e)
	}
	f, err := p.c.filter(rest, p.ref)
	if err != nil {
		return err
	}
	if p.grouped {
		p.q.having = and(p.q.having, f)
		if !f.empty() {
			p.c.say("A $match after $group filters the groups and becomes HAVING.")
		}
		return nil
	}
	p.q.where = and(p.q.where, f)
	if !f.empty() {
		p.c.say("$match becomes the WHERE clause.")
	}
	return nil
}

// arrayTest turns {as: {$ne: []}} and {as: {$size: 0}} on a joined array into
// an inner join, an anti-join or, for existence lookups, a subquery
func (p *pipeline) arrayTest(j *join, v interface{}) bool {
	ops, ok := v.(bson.D)
	if !ok || len(ops) != 1 {
		return false
	}
	var nonEmpty bool
	switch ops[0].Key {
	case "$ne":
		list, isArray := ops[0].Value.(bson.A)
		if !isArray || len(list) > 0 {
			return false
		}
		nonEmpty = true
	case "$size":
		if n, err := integer(ops[0].Value, "$size"); err != nil || n != 0 {
			return false
		}
	case "$eq":
		list, isArray := ops[0].Value.(bson.A)
		if !isArray || len(list) > 0 {
			return false
		}
	default:
		return false
	}

	if j.semi {
		p.q.where = and(p.q.where, leaf(j.subquery(!nonEmpty)))
		j.dropped = true
		p.c.say("The $lookup on %s only tests for a match and becomes a subquery.", j.table)
		return true
	}
	if nonEmpty {
		j.kind = "INNER JOIN"
		p.c.say("The $match on a non-empty %s array keeps only matched documents, so the join is an INNER JOIN.", j.alias)
		return true
	}
	p.q.where = and(p.q.where, leaf(ident(j.alias)+"."+ident(j.foreign)+" IS NULL"))
	p.c.say("The $match on an empty %s array keeps unmatched documents: a LEFT JOIN filtered on IS NULL.", j.alias)
	return true
}

func (j *join) subquery(negate bool) string {
	if j.local == "" {
		sub := "SELECT 1 FROM " + ident(j.table)
		if !j.subWhere.empty() {
			sub += " WHERE " + j.subWhere.String()
		}
		if negate {
			return "NOT EXISTS (" + sub + ")"
		}
		return "EXISTS (" + sub + ")"
	}
	sub := "SELECT " + ident(j.foreign) + " FROM " + ident(j.table)
	if !j.subWhere.empty() {
		sub += " WHERE " + j.subWhere.String()
	}
	if negate {
		return j.local + " NOT IN (" + sub + ")"
	}
	return j.local + " IN (" + sub + ")"
}

func (p *pipeline) group(spec bson.D) error {
	if p.grouped {
		return fmt.Errorf("%w: a second $group needs a derived table", ErrNotSupported)
	}
	if p.limited() {
		return fmt.Errorf("%w: $group after $limit or $skip needs a derived table", ErrNotSupported)
	}
	if len(p.q.orderBy) > 0 {
		p.q.orderBy = nil
		p.c.note("A $sort before $group only orders the group input; GROUP BY does not keep it, so it was dropped.")
	}

	outputs := map[string]string{}
	var cols, keys []string
	id, ok := field(spec, "_id")
	if !ok {
		return fmt.Errorf("%w: $group requires _id", ErrParse)
	}
	switch k := id.(type) {
	case nil, primitive.Null:
	case bson.D:
		if operatorDoc(k) {
			e, err := p.c.expr(k, p.ref)
			if err != nil {
				return err
			}
			outputs["_id"] = e
			keys = append(keys, e)
			cols = append(cols, alias(e, "_id"))
			break
		}
		for _, f := range k {
			e, err := p.c.expr(f.Value, p.ref)
			if err != nil {
				return err
			}
			outputs["_id."+f.Key] = e
			keys = append(keys, e)
			cols = append(cols, alias(e, f.Key))
		}
	case string:
		if !strings.HasPrefix(k, "$") {
			break
		}
		e, err := p.c.expr(k, p.ref)
		if err != nil {
			return err
		}
		outputs["_id"] = e
		keys = append(keys, e)
		cols = append(cols, e)
		p.c.note("The group key is returned under its column name; MongoDB names it _id.")
	}
	p.keyCols = append([]string(nil), cols...)

	for _, e := range spec {
		if e.Key == "_id" {
			continue
		}
		acc, ok := e.Value.(bson.D)
		if !ok || len(acc) != 1 {
			return fmt.Errorf("%w: accumulator %s must have one operator", ErrParse, e.Key)
		}
		agg, err := p.accumulator(acc[0].Key, acc[0].Value)
		if err != nil {
			return err
		}
		outputs[e.Key] = agg
		cols = append(cols, alias(agg, e.Key))
		p.aliases[e.Key] = true
	}

	p.q.columns = cols
	p.q.groupBy = keys
	p.outputs = outputs
	p.grouped = true
	p.restricted = true
	if len(keys) > 0 {
		p.c.say("$group becomes GROUP BY %s, with each accumulator as an aggregate function.", strings.Join(keys, ", "))
	} else {
		p.c.say("$group with a null _id aggregates every row into one result.")
	}
	return nil
}

func (p *pipeline) accumulator(op string, arg interface{}) (string, error) {
	switch op {
	case "$sum":
		if isOne(arg) {
			return "COUNT(*)", nil
		}
		if col, ok := p.countOf(arg); ok {
			return "COUNT(" + col + ")", nil
		}
		e, err := p.c.expr(arg, p.ref)
		if err != nil {
			return "", err
		}
		return "SUM(" + e + ")", nil
	case "$avg", "$min", "$max":
		e, err := p.c.expr(arg, p.ref)
		if err != nil {
			return "", err
		}
		return mapping.ReverseAccumulators[op] + "(" + e + ")", nil
	case "$count":
		return "COUNT(*)", nil
	case "$first", "$last":
		e, err := p.c.expr(arg, p.ref)
		if err != nil {
			return "", err
		}
		p.c.note(op + " depends on document order; ANY_VALUE returns a value from an arbitrary row of the group.")
		return "ANY_VALUE(" + e + ")", nil
	case "$push", "$addToSet":
		e, err := p.c.expr(arg, p.ref)
		if err != nil {
			return "", err
		}
		p.c.note("SQL has no array column; " + op + " becomes GROUP_CONCAT, a comma-separated string truncated at group_concat_max_len.")
		if op == "$addToSet" {
			return "GROUP_CONCAT(DISTINCT " + e + ")", nil
		}
		return "GROUP_CONCAT(" + e + ")", nil
	}
	return "", fmt.Errorf("%w: accumulator %s", ErrNotSupported, op)
}

// countOf recognises {$cond: [{$gt: [x, null]}, 1, 0]}, the non-null count
func (p *pipeline) countOf(arg interface{}) (string, bool) {
	d, ok := arg.(bson.D)
	if !ok || len(d) != 1 || d[0].Key != "$cond" {
		return "", false
	}
	parts, ok := d[0].Value.(bson.A)
	if !ok || len(parts) != 3 || !isOne(parts[1]) || !isZero(parts[2]) {
		return "", false
	}
	test, ok := parts[0].(bson.D)
	if !ok || len(test) != 1 || test[0].Key != "$gt" {
		return "", false
	}
	pair, ok := test[0].Value.(bson.A)
	if !ok || len(pair) != 2 || !isNull(pair[1]) {
		return "", false
	}
	e, err := p.c.expr(pair[0], p.ref)
	if err != nil {
		return "", false
	}
	return e, true
}

func isOne(v interface{}) bool {
	n, err := integer(v, "")
	return err == nil && n == 1
}

func isZero(v interface{}) bool {
	n, err := integer(v, "")
	return err == nil && n == 0
}

func (p *pipeline) project(d bson.D) error {
	var cols, plain []string
	outputs := map[string]string{}
	aliases := map[string]bool{}
	withID := p.grouped
	listedID := false

	for _, e := range d {
		if on, ok := truthy(e.Value); ok {
			if !on {
				if e.Key == "_id" {
					withID = false
					continue
				}
				return fmt.Errorf("%w: exclusion projection (%s: 0); list the columns to keep instead", ErrNotSupported, e.Key)
			}
			if e.Key == "_id" && p.grouped {
				listedID = true
				cols = append(cols, p.keyCols...)
				continue
			}
			expr, err := p.ref(e.Key)
			if err != nil {
				return err
			}
			cols = append(cols, alias(expr, e.Key))
			outputs[e.Key] = expr
			if p.aliases[e.Key] {
				aliases[e.Key] = true
			} else {
				plain = append(plain, expr)
			}
			continue
		}
		if j := p.sizeOf(e.Value); j != nil {
			expr := "COUNT(" + ident(j.alias) + "." + ident(j.foreign) + ")"
			cols = append(cols, alias(expr, e.Key))
			outputs[e.Key] = expr
			aliases[e.Key] = true
			p.sized = append(p.sized, j)
			continue
		}
		expr, err := p.c.expr(e.Value, p.ref)
		if err != nil {
			return err
		}
		cols = append(cols, alias(expr, e.Key))
		outputs[e.Key] = expr
		aliases[e.Key] = true
		if !p.grouped {
			plain = append(plain, expr)
		}
	}
	if withID && !listedID {
		cols = append(append([]string{}, p.keyCols...), cols...)
	}

	if len(p.sized) > 0 && !p.grouped {
		var keys []string
		for _, j := range p.sized {
			keys = appendUnique(keys, j.local)
		}
		for _, e := range plain {
			keys = appendUnique(keys, e)
		}
		p.q.groupBy = keys
		p.grouped = true
		p.c.say("$size of the joined array becomes COUNT over the join, grouped per %s row.", p.c.table)
	}

	p.q.columns = cols
	p.outputs = outputs
	p.aliases = aliases
	p.restricted = true
	p.c.say("$project becomes the select list.")
	return nil
}

// sizeOf returns the join behind {$size: "$as"} on an array not yet unwound
func (p *pipeline) sizeOf(v interface{}) *join {
	d, ok := v.(bson.D)
	if !ok || len(d) != 1 || d[0].Key != "$size" || p.grouped {
		return nil
	}
	name, ok := d[0].Value.(string)
	if !ok {
		return nil
	}
	j := p.c.lookup(strings.TrimPrefix(name, "$"))
	if j == nil || j.unwound || j.dropped || j.local == "" {
		return nil
	}
	return j
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func (p *pipeline) addFields(d bson.D) error {
	if p.outputs == nil {
		p.outputs = map[string]string{}
	}
	if len(p.q.columns) == 0 {
		p.q.columns = []string{"*"}
	}
	for _, e := range d {
		expr, err := p.c.expr(e.Value, p.ref)
		if err != nil {
			return err
		}
		p.q.columns = append(p.q.columns, alias(expr, e.Key))
		p.outputs[e.Key] = expr
		p.aliases[e.Key] = true
	}
	p.c.say("$set adds computed columns to the select list.")
	return nil
}

func (p *pipeline) unset(body interface{}) error {
	names, err := unsetNames(body)
	if err != nil {
		return err
	}
	for _, n := range names {
		if p.c.lookup(n) != nil {
			continue
		}
		p.c.note("SQL has no column exclusion; list the columns you need instead of SELECT * to drop " + n + ".")
	}
	return nil
}

func (p *pipeline) sort(d bson.D) error {
	if p.limited() {
		return fmt.Errorf("%w: $sort after $limit or $skip needs a derived table", ErrNotSupported)
	}
	order, err := p.c.orderBy(d, func(path string) (string, error) {
		if p.aliases[path] {
			return ident(path), nil
		}
		return p.ref(path)
	})
	if err != nil {
		return err
	}
	p.q.orderBy = order
	p.c.say("$sort becomes ORDER BY, with -1 read as DESC.")
	return nil
}

func (p *pipeline) count(name string) error {
	if p.grouped {
		return fmt.Errorf("%w: $count after $group needs a derived table", ErrNotSupported)
	}
	if p.limited() {
		return fmt.Errorf("%w: $count after $limit or $skip needs a derived table", ErrNotSupported)
	}
	p.q.columns = []string{"COUNT(*) AS " + ident(name)}
	p.q.orderBy = nil
	p.outputs = map[string]string{name: "COUNT(*)"}
	p.aliases = map[string]bool{name: true}
	p.grouped = true
	p.restricted = true
	p.c.say("$count becomes SELECT COUNT(*) AS %s.", ident(name))
	return nil
}

func (p *pipeline) lookup(d bson.D) error {
	from, _ := stringField(d, "from")
	as, _ := stringField(d, "as")
	if from == "" || as == "" {
		return fmt.Errorf("%w: $lookup requires from and as", ErrParse)
	}
	j := &join{kind: "LEFT JOIN", table: from, alias: as}

	local, hasLocal := stringField(d, "localField")
	foreign, hasForeign := stringField(d, "foreignField")
	if hasLocal != hasForeign {
		return fmt.Errorf("%w: $lookup needs both localField and foreignField", ErrParse)
	}
	if hasLocal {
		col, err := p.ref(local)
		if err != nil {
			return err
		}
		j.local, j.foreign = col, foreign
		j.on = append(j.on, col+" = "+ident(as)+"."+ident(foreign))
	}

	if v, ok := field(d, "pipeline"); ok {
		if err := p.subPipeline(j, d, v); err != nil {
			return err
		}
	}
	if len(j.on) == 0 {
		return fmt.Errorf("%w: $lookup without a join condition", ErrNotSupported)
	}

	p.c.lookups = append(p.c.lookups, j)
	p.q.joins = append(p.q.joins, j)
	p.c.say("$lookup from %s becomes a LEFT JOIN on %s.", from, strings.Join(j.on, " AND "))
	return nil
}

// subPipeline reads the $match and $limit: 1 stages of a correlated lookup.
// Its conditions join the ON clause and, for existence tests, the subquery.
func (p *pipeline) subPipeline(j *join, d bson.D, v interface{}) error {
	stages, err := array(v, "$lookup pipeline")
	if err != nil {
		return err
	}

	if letDoc, ok := field(d, "let"); ok {
		let, err := document(letDoc, "let")
		if err != nil {
			return err
		}
		for _, e := range let {
			bound, err := p.c.expr(e.Value, p.ref)
			if err != nil {
				return err
			}
			p.c.vars[e.Key] = bound
		}
		defer func() {
			for _, e := range let {
				delete(p.c.vars, e.Key)
			}
		}()
	}

	joined := func(path string) (string, error) { return ident(j.alias) + "." + p.c.ident(path), nil }
	bare := func(path string) (string, error) { return ident(j.table) + "." + p.c.ident(path), nil }
	for i, s := range stages {
		st, ok := s.(bson.D)
		if !ok || len(st) != 1 {
			return fmt.Errorf("%w: $lookup stage %d must be a document with one operator", ErrParse, i+1)
		}
		switch st[0].Key {
		case "$match":
			m, err := document(st[0].Value, "$match")
			if err != nil {
				return err
			}
			on, err := p.c.filter(m, joined)
			if err != nil {
				return err
			}
			sub, err := p.c.filter(m, bare)
			if err != nil {
				return err
			}
			if !on.empty() {
				j.on = append(j.on, on.grouped())
			}
			j.subWhere = and(j.subWhere, sub)
		case "$limit":
			if !isOne(st[0].Value) {
				return fmt.Errorf("%w: $limit inside $lookup", ErrNotSupported)
			}
			j.semi = true
		default:
			return fmt.Errorf("%w: %s inside $lookup", ErrNotSupported, st[0].Key)
		}
	}
	return nil
}

func stringField(d bson.D, key string) (string, bool) {
	v, ok := field(d, key)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

func (p *pipeline) unwind(body interface{}) error {
	var (
		path     string
		preserve bool
	)
	switch x := body.(type) {
	case string:
		path = x
	case bson.D:
		path, _ = stringField(x, "path")
		if v, ok := field(x, "preserveNullAndEmptyArrays"); ok {
			preserve, _ = truthy(v)
		}
	default:
		return fmt.Errorf("%w: $unwind expects a path", ErrParse)
	}
	name := strings.TrimPrefix(path, "$")
	j := p.c.lookup(name)
	if j == nil {
		return fmt.Errorf("%w: $unwind of the embedded array %s", ErrNotSupported, name)
	}
	j.unwound = true
	if preserve {
		j.kind = "LEFT JOIN"
		p.c.say("$unwind with preserveNullAndEmptyArrays keeps unmatched rows, as a LEFT JOIN does.")
	} else {
		j.kind = "INNER JOIN"
		p.c.say("$unwind drops documents without a match, which makes the join an INNER JOIN.")
	}
	return nil
}

func (p *pipeline) finish() string {
	for _, j := range p.c.lookups {
		if j.unwound || j.dropped || j.kind == "INNER JOIN" {
			continue
		}
		sized := false
		for _, s := range p.sized {
			sized = sized || s == j
		}
		if !sized {
			p.c.note("Without $unwind the joined " + j.alias + " documents form an array; the JOIN returns one row per match instead.")
		}
	}
	for _, j := range p.q.joins {
		if !j.dropped {
			p.c.note("Index the join columns so each JOIN resolves with an index lookup.")
		}
	}
	return p.q.String()
}
