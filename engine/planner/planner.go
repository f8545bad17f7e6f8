// Package planner turns a parsed statement into a models.Plan: columns are
// resolved against the tables in scope, predicates normalized, joins
// classified and the driver call chosen.
package planner

import (
	"fmt"

	"github.com/omniql-engine/querycraft/engine/ast"
	"github.com/omniql-engine/querycraft/engine/models"
)

// Options tunes planning
type Options struct {
	// RenameID maps SQL "id" columns onto MongoDB's "_id"
	RenameID bool
}

// Planner is stateless and safe for concurrent use
type Planner struct {
	opts Options
}

// New creates a planner
func New(opts Options) *Planner {
	return &Planner{opts: opts}
}

// Plan builds and validates the plan of one statement
func (pl *Planner) Plan(stmt ast.Statement) (*models.Plan, error) {
	var (
		plan *models.Plan
		err  error
	)
	switch s := stmt.(type) {
	case *ast.SelectStatement:
		plan, err = pl.planSelect(s)
	case *ast.InsertStatement:
		plan, err = pl.planInsert(s)
	case *ast.UpdateStatement:
		plan, err = pl.planUpdate(s)
	case *ast.DeleteStatement:
		plan, err = pl.planDelete(s)
	default:
		return nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (pl *Planner) columnPath(column string) string {
	if pl.opts.RenameID && column == "id" {
		return "_id"
	}
	return column
}

func (pl *Planner) tableScope(ref ast.TableRef) *scope {
	return &scope{pl: pl, tables: []*table{{name: ref.Name, alias: ref.Alias}}}
}

// =============================================================================
// MUTATIONS
// =============================================================================

func (pl *Planner) planInsert(stmt *ast.InsertStatement) (*models.Plan, error) {
	plan := &models.Plan{Kind: models.KindInsertOne, Collection: stmt.Table.Name}
	if len(stmt.Rows) > 1 {
		plan.Kind = models.KindInsertMany
	}

	ctx := &exprCtx{
		clause: "VALUES",
		column: func(ref *ast.ColumnRef) (models.Operand, error) {
			return models.Operand{}, unsupported(ref.Position, "column reference in VALUES")
		},
	}
	for _, row := range stmt.Rows {
		doc := make(models.Document, 0, len(row))
		for i, e := range row {
			v, err := pl.operand(e, ctx)
			if err != nil {
				return nil, err
			}
			if !v.IsConst() {
				return nil, unsupported(e.Pos(), "computed expression in VALUES")
			}
			doc = append(doc, models.DocField{Name: pl.columnPath(stmt.Columns[i]), Value: v})
		}
		plan.Documents = append(plan.Documents, doc)
	}
	return plan, nil
}

func (pl *Planner) planUpdate(stmt *ast.UpdateStatement) (*models.Plan, error) {
	plan := &models.Plan{Kind: models.KindUpdateMany, Collection: stmt.Table.Name, Alias: stmt.Table.Alias}
	sc := pl.tableScope(stmt.Table)
	ctx := &exprCtx{clause: "UPDATE", column: sc.operands}

	for _, a := range stmt.Assignments {
		path := pl.columnPath(a.Column)
		if path == "_id" {
			return nil, unsupported(a.Position, "update of _id")
		}
		v, err := pl.operand(a.Value, ctx)
		if err != nil {
			return nil, err
		}
		plan.Assignments = append(plan.Assignments, models.Assignment{Path: path, Value: v})
	}

	if stmt.Where == nil {
		plan.Warnings = append(plan.Warnings, "UPDATE without WHERE modifies every document in the collection")
		return plan, nil
	}
	filter, err := pl.predicate(stmt.Where, ctx)
	if err != nil {
		return nil, err
	}
	plan.Filter = filter
	return plan, nil
}

func (pl *Planner) planDelete(stmt *ast.DeleteStatement) (*models.Plan, error) {
	plan := &models.Plan{Kind: models.KindDeleteMany, Collection: stmt.Table.Name, Alias: stmt.Table.Alias}
	if stmt.Where == nil {
		plan.Warnings = append(plan.Warnings, "DELETE without WHERE removes every document in the collection")
		return plan, nil
	}
	sc := pl.tableScope(stmt.Table)
	filter, err := pl.predicate(stmt.Where, &exprCtx{clause: "DELETE", column: sc.operands})
	if err != nil {
		return nil, err
	}
	plan.Filter = filter
	return plan, nil
}
