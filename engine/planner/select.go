package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/omniql-engine/querycraft/engine/ast"
	"github.com/omniql-engine/querycraft/engine/models"
)

// selectPlanner carries the state of planning one SELECT
type selectPlanner struct {
	pl    *Planner
	stmt  *ast.SelectStatement
	plan  *models.Plan
	scope *scope

	base    string         // ref of the FROM table
	joinAt  map[string]int // table ref -> index in plan.Joins
	touched map[int]bool   // joins read at row level
	aliases nameSet        // join output fields

	outputs []string // output name per select item
	names   nameSet

	// grouped queries
	keyPaths map[string]string // pre-group path -> post-group path
	accs     map[string]string // aggregate text -> accumulator name
	firsts   map[string]string // pre-group path -> FIRST accumulator
	items    []models.Operand  // operand per select item, post-group when grouped
}

func (pl *Planner) planSelect(stmt *ast.SelectStatement) (*models.Plan, error) {
	sp := &selectPlanner{
		pl:      pl,
		stmt:    stmt,
		plan:    &models.Plan{Kind: models.KindFind, Collection: stmt.From.Name, Alias: stmt.From.Alias},
		scope:   pl.tableScope(stmt.From),
		base:    stmt.From.Ref(),
		joinAt:  map[string]int{},
		touched: map[int]bool{},
		aliases: nameSet{},
		names:   nameSet{},
	}
	sp.scope.touch = sp.touch
	return sp.run()
}

func (sp *selectPlanner) run() (*models.Plan, error) {
	stmt, plan := sp.stmt, sp.plan

	for i := range stmt.Joins {
		if err := sp.join(&stmt.Joins[i]); err != nil {
			return nil, err
		}
	}
	if err := sp.where(); err != nil {
		return nil, err
	}
	plan.Skip, plan.Limit = stmt.Offset, stmt.Limit

	if sp.isCount() {
		plan.Kind = models.KindCount
		return plan, nil
	}

	sp.nameOutputs()

	if sp.isGrouped() {
		if stmt.Distinct {
			return nil, unsupported(stmt.Position, "DISTINCT with GROUP BY or aggregates")
		}
		if err := sp.group(); err != nil {
			return nil, err
		}
	} else {
		if err := sp.project(); err != nil {
			return nil, err
		}
		if err := sp.order(); err != nil {
			return nil, err
		}
		if stmt.Distinct {
			if err := sp.distinct(); err != nil {
				return nil, err
			}
		}
	}

	for i := range plan.Joins {
		j := &plan.Joins[i]
		if !j.Semi {
			j.Unwind = j.ToOne || sp.touched[i]
		}
	}
	if plan.Kind != models.KindDistinct {
		plan.Reclassify()
	}
	return plan, nil
}

func (sp *selectPlanner) touch(f models.Field) {
	if i, ok := sp.joinAt[f.Source]; ok {
		sp.touched[i] = true
	}
}

// =============================================================================
// JOINS
// =============================================================================

func (sp *selectPlanner) join(jc *ast.JoinClause) error {
	ref := jc.Table.Ref()
	if sp.scope.find(ref) != nil {
		return unsupported(jc.Table.Position, "table "+ref+" referenced twice without distinct aliases")
	}
	next := &table{name: jc.Table.Name, alias: jc.Table.Alias}

	var (
		locals   []models.Field
		foreigns []string
	)
	for _, cond := range jc.On {
		local, foreign, err := sp.joinSides(cond, next, jc)
		if err != nil {
			return err
		}
		f, err := sp.scope.resolve(local)
		if err != nil {
			return err
		}
		locals = append(locals, f)
		foreigns = append(foreigns, foreign.Column)
	}

	toOne := foreigns[0] == "id" || foreigns[0] == "_id"
	as := jc.Table.Name
	if toOne {
		as = inflection.Singular(jc.Table.Name)
	}
	if sp.aliases[as] && jc.Table.Alias != "" && !sp.aliases[jc.Table.Alias] {
		as = jc.Table.Alias
	}
	as = sp.aliases.take(as)
	next.prefix = as

	spec := models.JoinSpec{
		From:         jc.Table.Name,
		Alias:        jc.Table.Alias,
		LocalField:   locals[0].Path,
		ForeignField: sp.pl.columnPath(foreigns[0]),
		As:           as,
		Kind:         models.JoinInner,
		ToOne:        toOne,
	}
	if jc.Kind == ast.JoinLeft {
		spec.Kind = models.JoinLeft
	}
	for i := 1; i < len(locals); i++ {
		spec.ExtraKeys = append(spec.ExtraKeys, models.JoinKey{Local: locals[i].Path, Foreign: sp.pl.columnPath(foreigns[i])})
	}

	sp.joinAt[next.ref()] = len(sp.plan.Joins)
	sp.plan.Joins = append(sp.plan.Joins, spec)
	sp.scope.tables = append(sp.scope.tables, next)
	return nil
}

// joinSides orders one ON equality as (column of an earlier table, column of the joined table)
func (sp *selectPlanner) joinSides(cond ast.JoinCondition, next *table, jc *ast.JoinClause) (*ast.ColumnRef, *ast.ColumnRef, error) {
	isNext := func(ref *ast.ColumnRef) (bool, error) {
		if ref.Table == "" {
			return false, &AmbiguousColumn{Column: ref.Column, Tables: append(sp.scope.refs(), next.ref()), Position: ref.Position}
		}
		if ref.Table == next.ref() {
			return true, nil
		}
		if sp.scope.find(ref.Table) == nil {
			return false, &UnknownTable{Name: ref.Table, Position: ref.Position}
		}
		return false, nil
	}

	l, err := isNext(cond.Left)
	if err != nil {
		return nil, nil, err
	}
	r, err := isNext(cond.Right)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case r && !l:
		return cond.Left, cond.Right, nil
	case l && !r:
		return cond.Right, cond.Left, nil
	}
	return nil, nil, unsupported(jc.Position, "join condition must relate "+next.ref()+" to an earlier table")
}

// =============================================================================
// WHERE
// =============================================================================

func (sp *selectPlanner) where() error {
	if sp.stmt.Where == nil {
		return nil
	}
	pred, err := sp.pl.predicate(sp.stmt.Where, &exprCtx{
		clause:   "WHERE",
		column:   sp.scope.operands,
		subquery: sp.semiJoin,
	})
	if err != nil {
		return err
	}

	// conjuncts over the base table run before any $lookup
	for _, c := range pred.Conjuncts() {
		if sp.baseOnly(c) {
			sp.plan.Filter = models.And(sp.plan.Filter, c)
		} else {
			sp.plan.PostFilter = models.And(sp.plan.PostFilter, c)
		}
	}
	return nil
}

func (sp *selectPlanner) baseOnly(p *models.Predicate) bool {
	for _, f := range p.Fields() {
		if f.Source != sp.base {
			return false
		}
	}
	return true
}

// semiJoin plans "x [NOT] IN (SELECT col FROM t [WHERE ...])" as a $lookup whose
// output only feeds an emptiness test
func (sp *selectPlanner) semiJoin(n *ast.InExpr) (*models.Predicate, error) {
	sub := n.Subquery.Select
	switch {
	case len(sub.Items) != 1 || sub.Items[0].Star:
		return nil, unsupported(n.Subquery.Position, "subquery with more than one column")
	case len(sub.Joins) > 0:
		return nil, unsupported(sub.Joins[0].Position, "subquery with JOIN")
	case sub.GroupBy != nil:
		return nil, unsupported(sub.GroupBy.Position, "subquery with GROUP BY")
	case sub.Having != nil:
		return nil, unsupported(sub.Having.Pos(), "subquery with HAVING")
	case sub.OrderBy != nil:
		return nil, unsupported(sub.OrderBy.Position, "subquery with ORDER BY")
	case sub.Limit != nil || sub.Offset != nil:
		return nil, unsupported(n.Subquery.Position, "subquery with LIMIT")
	}
	col, ok := sub.Items[0].Expr.(*ast.ColumnRef)
	if !ok {
		return nil, unsupported(sub.Items[0].Position, "subquery with computed column")
	}

	inner := sp.pl.tableScope(sub.From)
	inner.outer = sp.scope
	foreign, err := inner.resolve(col)
	if err != nil {
		return nil, err
	}

	outer, err := sp.pl.operand(n.Expr, &exprCtx{clause: "WHERE", column: sp.scope.operands})
	if err != nil {
		return nil, err
	}
	if outer.Kind != models.OperandField {
		return nil, unsupported(n.Position, "IN subquery on a computed expression")
	}

	var filter *models.Predicate
	if sub.Where != nil {
		if filter, err = sp.pl.predicate(sub.Where, &exprCtx{clause: "subquery", column: inner.operands}); err != nil {
			return nil, err
		}
	}

	as := sp.aliases.take(sub.From.Name + "_match")
	sp.plan.Joins = append(sp.plan.Joins, models.JoinSpec{
		From:         sub.From.Name,
		Alias:        sub.From.Alias,
		LocalField:   outer.Field.Path,
		ForeignField: foreign.Path,
		As:           as,
		Kind:         models.JoinLeft,
		Semi:         true,
		SubFilter:    filter,
	})
	sp.plan.Unset = append(sp.plan.Unset, as)

	return &models.Predicate{
		Kind:    models.PredNonEmpty,
		Left:    models.FieldRef(models.Field{Path: as}),
		Negated: n.Not,
	}, nil
}

// =============================================================================
// SHAPE
// =============================================================================

// isCount detects a bare SELECT COUNT(*) FROM t [WHERE ...]
func (sp *selectPlanner) isCount() bool {
	s := sp.stmt
	if len(s.Items) != 1 || s.Distinct || s.GroupBy != nil || s.Having != nil || s.OrderBy != nil ||
		s.Limit != nil || s.Offset != nil || len(sp.plan.Joins) > 0 {
		return false
	}
	agg, ok := s.Items[0].Expr.(*ast.AggregateCall)
	return ok && agg.Func == "COUNT" && agg.Star
}

func (sp *selectPlanner) isGrouped() bool {
	s := sp.stmt
	if s.GroupBy != nil || s.Having != nil {
		return true
	}
	for _, item := range s.Items {
		found := false
		ast.Walk(item.Expr, func(e ast.Expr) bool {
			if _, ok := e.(*ast.AggregateCall); ok {
				found = true
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

// nameOutputs fixes the output field name of every select item
func (sp *selectPlanner) nameOutputs() {
	sp.outputs = make([]string, len(sp.stmt.Items))
	// aliases first so they keep their exact spelling
	for i, item := range sp.stmt.Items {
		if item.Alias != "" {
			sp.outputs[i] = sp.names.take(strings.ReplaceAll(item.Alias, ".", "_"))
		}
	}
	for i, item := range sp.stmt.Items {
		if item.Star || item.Alias != "" {
			continue
		}
		if ref, ok := item.Expr.(*ast.ColumnRef); ok {
			sp.outputs[i] = sp.columnName(ref)
			continue
		}
		sp.outputs[i] = sp.names.take(defaultName(item.Expr, i+1))
	}
}

// columnName names a plain column output: the column itself, then table_column on collision
func (sp *selectPlanner) columnName(ref *ast.ColumnRef) string {
	name := sp.pl.columnPath(ref.Column)
	if !sp.names[name] {
		return sp.names.take(name)
	}
	if t := sp.scope.find(ref.Table); t != nil {
		name = inflection.Singular(t.name) + "_" + name
	}
	return sp.names.take(name)
}

func defaultName(e ast.Expr, n int) string {
	switch x := e.(type) {
	case *ast.AggregateCall:
		name := strings.ToLower(x.Func)
		if ref, ok := x.Arg.(*ast.ColumnRef); ok {
			name += "_" + ref.Column
		}
		return name
	case *ast.FuncCall:
		if len(x.Args) == 1 {
			if ref, ok := x.Args[0].(*ast.ColumnRef); ok {
				return strings.ToLower(x.Name) + "_" + ref.Column
			}
		}
		if len(x.Args) == 0 {
			return strings.ToLower(x.Name)
		}
	}
	return "expr" + strconv.Itoa(n)
}

// =============================================================================
// PROJECTION / ORDER (row level)
// =============================================================================

func (sp *selectPlanner) project() error {
	plan, items := sp.plan, sp.stmt.Items
	if len(items) == 1 && items[0].Star && items[0].StarTable == "" {
		plan.SelectAll = true
		return nil
	}

	starred := map[string]bool{}
	sp.items = make([]models.Operand, len(items))
	ctx := &exprCtx{clause: "SELECT", column: sp.scope.operands}
	for i, item := range items {
		if item.Star {
			if item.StarTable == "" {
				plan.SelectAll, plan.KeepBase = true, true
				continue
			}
			t := sp.scope.find(item.StarTable)
			if t == nil {
				return &UnknownTable{Name: item.StarTable, Position: item.Position}
			}
			if t.prefix == "" {
				plan.KeepBase = true
				continue
			}
			starred[t.prefix] = true
			plan.Projection = append(plan.Projection, models.Projection{
				Name: t.prefix,
				Expr: models.FieldRef(models.Field{Source: t.ref(), Path: t.prefix}),
			})
			continue
		}

		v, err := sp.pl.operand(item.Expr, ctx)
		if err != nil {
			return err
		}
		sp.items[i] = v
		plan.Projection = append(plan.Projection, models.Projection{Name: sp.outputs[i], Expr: v})
	}

	// base.* drops joined documents nobody asked for
	if plan.KeepBase && !plan.SelectAll {
		for _, j := range plan.Joins {
			if !j.Semi && !starred[j.As] {
				plan.Unset = append(plan.Unset, j.As)
			}
		}
	}
	return nil
}

func (sp *selectPlanner) order() error {
	if sp.stmt.OrderBy == nil {
		return nil
	}
	ctx := &exprCtx{clause: "ORDER BY", column: sp.scope.operands}
	for _, item := range sp.stmt.OrderBy.Items {
		v, err := sp.sortOperand(item.Expr, ctx, sp.rowItem)
		if err != nil {
			return err
		}
		sp.plan.Sort = append(sp.plan.Sort, models.SortKey{Path: v.Field.Path, Desc: item.Desc})
	}
	return nil
}

// rowItem returns the operand a select item evaluates to before projection
func (sp *selectPlanner) rowItem(i int) (models.Operand, bool) {
	if sp.stmt.Items[i].Star || sp.items == nil {
		return models.Operand{}, false
	}
	return sp.items[i], true
}

// sortOperand resolves an ORDER BY key: a position, a select alias or an expression.
// The result must be a field.
func (sp *selectPlanner) sortOperand(e ast.Expr, ctx *exprCtx, item func(int) (models.Operand, bool)) (models.Operand, error) {
	var (
		v   models.Operand
		err error
	)
	switch x := e.(type) {
	case *ast.Literal:
		n, perr := strconv.Atoi(x.Value)
		if x.Kind != ast.LiteralNumber || perr != nil || n < 1 || n > len(sp.stmt.Items) {
			return models.Operand{}, unsupported(x.Position, "ORDER BY constant "+x.String())
		}
		op, ok := item(n - 1)
		if !ok {
			return models.Operand{}, unsupported(x.Position, "ORDER BY position of *")
		}
		v = op
	case *ast.ColumnRef:
		if i := sp.aliasIndex(x); i >= 0 {
			if op, ok := item(i); ok {
				v = op
				break
			}
		}
		if v, err = sp.pl.operand(e, ctx); err != nil {
			return models.Operand{}, err
		}
	default:
		if v, err = sp.pl.operand(e, ctx); err != nil {
			return models.Operand{}, err
		}
	}
	if v.Kind != models.OperandField {
		return models.Operand{}, unsupported(e.Pos(), "ORDER BY on computed expression "+e.String())
	}
	return v, nil
}

// aliasIndex finds the select item an unqualified name aliases, or -1
func (sp *selectPlanner) aliasIndex(ref *ast.ColumnRef) int {
	if ref.Table != "" {
		return -1
	}
	for i, item := range sp.stmt.Items {
		if item.Alias != "" && item.Alias == ref.Column {
			return i
		}
	}
	return -1
}

// distinct turns SELECT DISTINCT into a distinct() call or a $group on the
// projected fields
func (sp *selectPlanner) distinct() error {
	plan := sp.plan
	if plan.SelectAll || plan.KeepBase {
		return unsupported(sp.stmt.Position, "SELECT DISTINCT *")
	}
	for i, p := range plan.Projection {
		if p.Expr.Kind != models.OperandField {
			return unsupported(sp.stmt.Items[i].Position, "DISTINCT on computed expression")
		}
	}

	if len(plan.Projection) == 1 && len(plan.Joins) == 0 && plan.Sort == nil &&
		plan.Skip == nil && plan.Limit == nil {
		plan.Kind = models.KindDistinct
		plan.DistinctKey = plan.Projection[0].Expr.Field.Path
		plan.Projection = nil
		return nil
	}

	plan.Distinct, plan.Grouped = true, true
	post := map[string]string{}
	for _, p := range plan.Projection {
		plan.GroupKeys = append(plan.GroupKeys, models.GroupKey{Name: p.Name, Field: p.Expr.Field})
	}
	for i, p := range plan.Projection {
		path := keyPath(plan.GroupKeys, i)
		post[p.Expr.Field.Path] = path
		plan.Projection[i].Expr = models.FieldRef(models.Field{Source: p.Expr.Field.Source, Column: p.Expr.Field.Column, Path: path})
	}
	for i, s := range plan.Sort {
		path, ok := post[s.Path]
		if !ok {
			return unsupported(sp.stmt.OrderBy.Position, "ORDER BY "+s.Path+" not in the DISTINCT list")
		}
		plan.Sort[i].Path = path
	}
	return nil
}

func keyPath(keys []models.GroupKey, i int) string {
	if len(keys) == 1 {
		return "_id"
	}
	return "_id." + keys[i].Name
}

// =============================================================================
// GROUPING
// =============================================================================

func (sp *selectPlanner) group() error {
	plan, stmt := sp.plan, sp.stmt
	plan.Grouped = true
	sp.keyPaths, sp.accs, sp.firsts = map[string]string{}, map[string]string{}, map[string]string{}

	for _, item := range stmt.Items {
		if item.Star {
			return unsupported(item.Position, "SELECT * with GROUP BY")
		}
	}

	if stmt.GroupBy != nil {
		keyNames := nameSet{}
		for _, key := range stmt.GroupBy.Keys {
			ref := key
			if i := sp.aliasIndex(key); i >= 0 {
				col, ok := stmt.Items[i].Expr.(*ast.ColumnRef)
				if !ok {
					return unsupported(key.Position, "GROUP BY on computed expression "+stmt.Items[i].Expr.String())
				}
				ref = col
			}
			f, err := sp.scope.resolve(ref)
			if err != nil {
				return err
			}
			if _, dup := sp.keyPaths[f.Path]; dup {
				continue
			}
			name := f.Column
			if keyNames[name] {
				name = inflection.Singular(sp.scope.find(f.Source).name) + "_" + name
			}
			plan.GroupKeys = append(plan.GroupKeys, models.GroupKey{Name: keyNames.take(name), Field: f})
			sp.keyPaths[f.Path] = ""
		}
		for i, k := range plan.GroupKeys {
			sp.keyPaths[k.Field.Path] = keyPath(plan.GroupKeys, i)
		}
	}

	// direct aggregates own their output name
	for i, item := range stmt.Items {
		if agg, ok := item.Expr.(*ast.AggregateCall); ok {
			if _, err := sp.aggregate(agg, sp.outputs[i], false); err != nil {
				return err
			}
		}
	}

	ctx := sp.groupCtx("SELECT", false)
	sp.items = make([]models.Operand, len(stmt.Items))
	for i, item := range stmt.Items {
		v, err := sp.pl.operand(item.Expr, ctx)
		if err != nil {
			return err
		}
		sp.items[i] = v
		plan.Projection = append(plan.Projection, models.Projection{Name: sp.outputs[i], Expr: v})
	}

	if stmt.Having != nil {
		having, err := sp.pl.predicate(stmt.Having, sp.groupCtx("HAVING", true))
		if err != nil {
			return err
		}
		plan.Having = having
	}

	if stmt.OrderBy != nil {
		ctx := sp.groupCtx("ORDER BY", true)
		item := func(i int) (models.Operand, bool) { return sp.items[i], true }
		for _, o := range stmt.OrderBy.Items {
			v, err := sp.sortOperand(o.Expr, ctx, item)
			if err != nil {
				return err
			}
			plan.Sort = append(plan.Sort, models.SortKey{Path: v.Field.Path, Desc: o.Desc})
		}
	}
	return nil
}

// groupCtx resolves expressions evaluated after $group
func (sp *selectPlanner) groupCtx(clause string, aliases bool) *exprCtx {
	return &exprCtx{
		clause: clause,
		column: func(ref *ast.ColumnRef) (models.Operand, error) {
			if aliases {
				if i := sp.aliasIndex(ref); i >= 0 {
					return sp.items[i], nil
				}
			}
			return sp.groupedColumn(ref)
		},
		aggregate: func(n *ast.AggregateCall) (models.Operand, error) {
			return sp.aggregate(n, "", true)
		},
	}
}

// groupedColumn maps a column onto the $group output: a key, or the first
// value of the group for anything else
func (sp *selectPlanner) groupedColumn(ref *ast.ColumnRef) (models.Operand, error) {
	f, err := sp.scope.resolve(ref)
	if err != nil {
		return models.Operand{}, err
	}
	if path, ok := sp.keyPaths[f.Path]; ok {
		return models.FieldRef(models.Field{Source: f.Source, Column: f.Column, Path: path}), nil
	}

	name, ok := sp.firsts[f.Path]
	if !ok {
		name = sp.names.take("_first_" + strings.ReplaceAll(f.Path, ".", "_"))
		sp.firsts[f.Path] = name
		arg := models.FieldRef(f)
		sp.plan.Aggregates = append(sp.plan.Aggregates, models.Aggregate{Name: name, Func: "FIRST", Arg: &arg, Hidden: true})
		sp.plan.Warnings = append(sp.plan.Warnings, fmt.Sprintf(
			"%s is neither grouped nor aggregated; the first value of each group is used", ref.String()))
	}
	return models.FieldRef(models.Field{Source: f.Source, Column: f.Column, Path: name}), nil
}

// aggregate registers an accumulator once per distinct aggregate text
func (sp *selectPlanner) aggregate(n *ast.AggregateCall, name string, hidden bool) (models.Operand, error) {
	key := n.String()
	if acc, ok := sp.accs[key]; ok {
		return models.FieldRef(models.Field{Path: acc}), nil
	}

	a := models.Aggregate{Func: n.Func, Star: n.Star, Hidden: hidden}
	if !n.Star {
		arg, err := sp.pl.operand(n.Arg, &exprCtx{clause: "aggregate argument", column: sp.scope.operands})
		if err != nil {
			return models.Operand{}, err
		}
		a.Arg = &arg
	}
	if name == "" {
		name = sp.names.take("_" + defaultName(n, len(sp.plan.Aggregates)+1))
	}
	a.Name = name
	sp.accs[key] = name
	sp.plan.Aggregates = append(sp.plan.Aggregates, a)
	return models.FieldRef(models.Field{Path: name}), nil
}

// nameSet hands out unique names
type nameSet map[string]bool

func (s nameSet) take(name string) string {
	candidate := name
	for i := 2; s[candidate]; i++ {
		candidate = name + "_" + strconv.Itoa(i)
	}
	s[candidate] = true
	return candidate
}
