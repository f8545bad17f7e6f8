package models

import (
	"fmt"
)

// ============================================================================
// PLAN - normalized query intent, derived from the AST
// ============================================================================

// PlanKind selects the MongoDB driver call a plan renders to
type PlanKind string

const (
	KindFind       PlanKind = "find"
	KindCount      PlanKind = "countDocuments"
	KindDistinct   PlanKind = "distinct"
	KindAggregate  PlanKind = "aggregate"
	KindInsertOne  PlanKind = "insertOne"
	KindInsertMany PlanKind = "insertMany"
	KindUpdateMany PlanKind = "updateMany"
	KindDeleteMany PlanKind = "deleteMany"
)

// IsMutation reports insert/update/delete kinds
func (k PlanKind) IsMutation() bool {
	switch k {
	case KindInsertOne, KindInsertMany, KindUpdateMany, KindDeleteMany:
		return true
	}
	return false
}

// Plan is the logical form of one statement. Paths are dotted document paths
// in the working document at the point where they are used.
type Plan struct {
	Kind       PlanKind
	Collection string
	Alias      string // SQL alias of the base table

	Filter     *Predicate // base-collection predicate, applied before any $lookup
	PostFilter *Predicate // predicate over joined fields, applied after the lookups
	Joins      []JoinSpec

	Projection []Projection
	SelectAll  bool     // SELECT *
	KeepBase   bool     // SELECT base.*, ... : keep base fields, add the rest
	Unset      []string // helper paths removed from the output

	Distinct    bool
	DistinctKey string // KindDistinct only

	Grouped    bool // GROUP BY or aggregates present
	GroupKeys  []GroupKey
	Aggregates []Aggregate
	Having     *Predicate

	Sort  []SortKey
	Skip  *int64
	Limit *int64

	Documents   []Document   // insert
	Assignments []Assignment // update

	Warnings []string // planner observations surfaced as notes
}

// HasJoins reports whether the plan carries real (non semi-join) joins
func (p *Plan) HasJoins() bool {
	for _, j := range p.Joins {
		if !j.Semi {
			return true
		}
	}
	return false
}

// JoinCount counts real joins
func (p *Plan) JoinCount() int {
	n := 0
	for _, j := range p.Joins {
		if !j.Semi {
			n++
		}
	}
	return n
}

// ============================================================================
// JOINS
// ============================================================================

// JoinType is inner or left
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
)

// JoinKey is one extra equality of a multi-column ON predicate
type JoinKey struct {
	Local   string // path in the working document
	Foreign string // column of the joined collection
}

// JoinSpec describes one $lookup
type JoinSpec struct {
	From         string // joined collection
	Alias        string // SQL alias of the joined table
	LocalField   string
	ForeignField string
	As           string
	Kind         JoinType
	ToOne        bool
	ExtraKeys    []JoinKey

	Unwind   bool // $unwind after the lookup (always for to-one)
	Embedded bool // already embedded in the base document: no $lookup stage

	// Semi-join generated from "x IN (SELECT ...)": the lookup only feeds an
	// emptiness test and its output field is dropped afterwards.
	Semi      bool
	SubFilter *Predicate
}

// ============================================================================
// PROJECTION / GROUPING / SORT
// ============================================================================

// Projection is one output field
type Projection struct {
	Name string
	Expr Operand
}

// IsPlain reports a projection that copies a field to the same name
func (p Projection) IsPlain() bool {
	return p.Expr.Kind == OperandField && p.Expr.Field.Path == p.Name
}

// GroupKey is one GROUP BY column
type GroupKey struct {
	Name  string // output name
	Field Field
}

// Aggregate is one $group accumulator
type Aggregate struct {
	Name   string // accumulator field in the $group output
	Func   string // COUNT, SUM, AVG, MAX, MIN, FIRST
	Star   bool   // COUNT(*)
	Arg    *Operand
	Hidden bool // referenced only by HAVING/ORDER BY, projected away
}

// SortKey is one sort field; Path is valid at the $sort stage
type SortKey struct {
	Path string
	Desc bool
}

// ============================================================================
// MUTATIONS
// ============================================================================

// DocField is one field of an inserted document
type DocField struct {
	Name  string
	Value Operand
}

// Document is an ordered inserted document
type Document []DocField

// Assignment is one SET col = expr of an UPDATE
type Assignment struct {
	Path  string
	Value Operand
}

// ============================================================================
// VALIDATION
// ============================================================================

// Validate checks the structural invariants of a plan
func (p *Plan) Validate() error {
	if p.Collection == "" {
		return fmt.Errorf("invalid plan: empty collection")
	}

	switch p.Kind {
	case KindFind:
		if p.Grouped {
			return fmt.Errorf("invalid plan: find cannot carry grouping")
		}
		for _, j := range p.Joins {
			if !j.Embedded {
				return fmt.Errorf("invalid plan: find cannot carry a $lookup on %s", j.From)
			}
		}
	case KindCount:
		if len(p.Projection) > 0 || p.Grouped || len(p.Joins) > 0 {
			return fmt.Errorf("invalid plan: countDocuments takes only a filter")
		}
	case KindDistinct:
		if p.DistinctKey == "" {
			return fmt.Errorf("invalid plan: distinct without key")
		}
	case KindAggregate:
	case KindInsertOne:
		if len(p.Documents) != 1 {
			return fmt.Errorf("invalid plan: insertOne needs exactly one document, got %d", len(p.Documents))
		}
	case KindInsertMany:
		if len(p.Documents) < 2 {
			return fmt.Errorf("invalid plan: insertMany needs at least two documents, got %d", len(p.Documents))
		}
	case KindUpdateMany:
		if len(p.Assignments) == 0 {
			return fmt.Errorf("invalid plan: update without assignments")
		}
	case KindDeleteMany:
	default:
		return fmt.Errorf("invalid plan: unknown kind %q", p.Kind)
	}

	for i, j := range p.Joins {
		if j.From == "" || j.LocalField == "" || j.ForeignField == "" || j.As == "" {
			return fmt.Errorf("invalid plan: join %d is incomplete", i)
		}
		if j.Kind != JoinInner && j.Kind != JoinLeft {
			return fmt.Errorf("invalid plan: join %d has unknown type %q", i, j.Kind)
		}
	}
	for _, a := range p.Aggregates {
		if a.Name == "" || (!a.Star && a.Arg == nil) {
			return fmt.Errorf("invalid plan: incomplete aggregate %q", a.Name)
		}
	}
	return nil
}

// Clone returns a deep copy so strategies can rewrite a plan freely
func (p *Plan) Clone() *Plan {
	c := *p
	c.Filter = p.Filter.Clone()
	c.PostFilter = p.PostFilter.Clone()
	c.Having = p.Having.Clone()

	c.Joins = make([]JoinSpec, len(p.Joins))
	for i, j := range p.Joins {
		j.ExtraKeys = append([]JoinKey(nil), j.ExtraKeys...)
		j.SubFilter = j.SubFilter.Clone()
		c.Joins[i] = j
	}
	c.Projection = make([]Projection, len(p.Projection))
	for i, pr := range p.Projection {
		c.Projection[i] = Projection{Name: pr.Name, Expr: pr.Expr.Clone()}
	}
	c.GroupKeys = append([]GroupKey(nil), p.GroupKeys...)
	c.Aggregates = make([]Aggregate, len(p.Aggregates))
	for i, a := range p.Aggregates {
		if a.Arg != nil {
			arg := a.Arg.Clone()
			a.Arg = &arg
		}
		c.Aggregates[i] = a
	}
	c.Unset = append([]string(nil), p.Unset...)
	c.Sort = append([]SortKey(nil), p.Sort...)
	c.Warnings = append([]string(nil), p.Warnings...)
	c.Assignments = make([]Assignment, len(p.Assignments))
	for i, a := range p.Assignments {
		c.Assignments[i] = Assignment{Path: a.Path, Value: a.Value.Clone()}
	}
	c.Documents = make([]Document, len(p.Documents))
	for i, d := range p.Documents {
		doc := make(Document, len(d))
		for k, f := range d {
			doc[k] = DocField{Name: f.Name, Value: f.Value.Clone()}
		}
		c.Documents[i] = doc
	}
	return &c
}

// Reclassify picks the cheapest driver call able to run a read plan:
// find when nothing needs a pipeline, aggregate otherwise.
func (p *Plan) Reclassify() {
	if p.Kind.IsMutation() || p.Kind == KindCount || p.Kind == KindDistinct {
		return
	}
	if p.needsPipeline() {
		p.Kind = KindAggregate
		return
	}
	p.Kind = KindFind
	if p.PostFilter != nil {
		p.Filter = And(p.Filter, p.PostFilter)
		p.PostFilter = nil
	}
}

func (p *Plan) needsPipeline() bool {
	if p.Grouped || p.Distinct || p.KeepBase || len(p.Unset) > 0 {
		return true
	}
	for _, j := range p.Joins {
		if !j.Embedded || j.Unwind {
			return true
		}
	}
	for _, pr := range p.Projection {
		if !pr.IsPlain() {
			return true
		}
	}
	return false
}
