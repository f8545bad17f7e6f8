package models

// ============================================================================
// OPERANDS
// ============================================================================

// OperandKind tags an Operand
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandField
	OperandValue
	OperandDate
	OperandArith
	OperandFunc
)

// Field is a resolved column reference
type Field struct {
	Source string // owning SQL table, empty for computed outputs
	Column string
	Path   string // dotted path in the working document
}

// DateValue is a date relative to evaluation time
type DateValue struct {
	OffsetMillis int64 // added to now
	DayStart     bool  // truncate to midnight UTC (CURRENT_DATE)
}

// IsNow reports a plain NOW()
func (d DateValue) IsNow() bool {
	return d.OffsetMillis == 0 && !d.DayStart
}

// Operand is a value-producing expression
type Operand struct {
	Kind  OperandKind
	Field Field
	Value interface{} // string, int64, float64, bool or nil
	Date  DateValue
	Op    string // arithmetic operator (+ - * / %) or aggregation operator ($toLower...)
	Func  string // SQL function name for OperandFunc
	Args  []Operand
}

// FieldRef builds a field operand
func FieldRef(f Field) Operand {
	return Operand{Kind: OperandField, Field: f}
}

// Literal builds a constant operand
func Literal(v interface{}) Operand {
	return Operand{Kind: OperandValue, Value: v}
}

// Date builds a date operand
func Date(d DateValue) Operand {
	return Operand{Kind: OperandDate, Date: d}
}

// Arith builds a binary arithmetic operand
func Arith(op string, left, right Operand) Operand {
	return Operand{Kind: OperandArith, Op: op, Args: []Operand{left, right}}
}

// IsConst reports operands that need no document to evaluate
func (o Operand) IsConst() bool {
	return o.Kind == OperandValue || o.Kind == OperandDate
}

// Clone deep-copies the operand
func (o Operand) Clone() Operand {
	if len(o.Args) > 0 {
		args := make([]Operand, len(o.Args))
		for i, a := range o.Args {
			args[i] = a.Clone()
		}
		o.Args = args
	}
	return o
}

// Fields lists every field the operand reads, in order of appearance
func (o Operand) Fields() []Field {
	var out []Field
	o.walk(func(f Field) { out = append(out, f) })
	return out
}

func (o Operand) walk(fn func(Field)) {
	if o.Kind == OperandField {
		fn(o.Field)
	}
	for _, a := range o.Args {
		a.walk(fn)
	}
}

// MapFields returns a copy with every field replaced by fn(field)
func (o Operand) MapFields(fn func(Field) Field) Operand {
	o = o.Clone()
	o.mapFields(fn)
	return o
}

func (o *Operand) mapFields(fn func(Field) Field) {
	if o.Kind == OperandField {
		o.Field = fn(o.Field)
	}
	for i := range o.Args {
		o.Args[i].mapFields(fn)
	}
}

// ============================================================================
// PREDICATES
// ============================================================================

// PredicateKind tags a Predicate node
type PredicateKind int

const (
	PredAnd PredicateKind = iota
	PredOr
	PredNot
	PredCompare  // Left Op Right
	PredIn       // Left [NOT] IN Values
	PredLike     // Left [NOT] LIKE Pattern
	PredNull     // Left IS [NOT] NULL
	PredBetween  // Left [NOT] BETWEEN Low AND High
	PredNonEmpty // semi-join output at Left is [not] empty
)

// Predicate is a boolean tree over operands
type Predicate struct {
	Kind     PredicateKind
	Children []*Predicate
	Op       string // query operator for PredCompare: $eq, $ne, $gt, $lt, $gte, $lte
	Left     Operand
	Right    Operand
	Values   []Operand
	Low      Operand
	High     Operand
	Pattern  string
	Negated  bool
}

// And joins two predicates, flattening nested conjunctions. Nil operands are skipped.
func And(preds ...*Predicate) *Predicate {
	var children []*Predicate
	for _, p := range preds {
		if p == nil {
			continue
		}
		if p.Kind == PredAnd {
			children = append(children, p.Children...)
			continue
		}
		children = append(children, p)
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return &Predicate{Kind: PredAnd, Children: children}
}

// Conjuncts splits a top-level conjunction into its terms
func (p *Predicate) Conjuncts() []*Predicate {
	if p == nil {
		return nil
	}
	if p.Kind == PredAnd {
		return p.Children
	}
	return []*Predicate{p}
}

// Clone deep-copies the predicate; nil stays nil
func (p *Predicate) Clone() *Predicate {
	if p == nil {
		return nil
	}
	c := *p
	c.Left = p.Left.Clone()
	c.Right = p.Right.Clone()
	c.Low = p.Low.Clone()
	c.High = p.High.Clone()
	if len(p.Children) > 0 {
		c.Children = make([]*Predicate, len(p.Children))
		for i, ch := range p.Children {
			c.Children[i] = ch.Clone()
		}
	}
	if len(p.Values) > 0 {
		c.Values = make([]Operand, len(p.Values))
		for i, v := range p.Values {
			c.Values[i] = v.Clone()
		}
	}
	return &c
}

// Fields lists every field the predicate reads
func (p *Predicate) Fields() []Field {
	if p == nil {
		return nil
	}
	var out []Field
	for _, ch := range p.Children {
		out = append(out, ch.Fields()...)
	}
	switch p.Kind {
	case PredCompare:
		out = append(out, p.Left.Fields()...)
		out = append(out, p.Right.Fields()...)
	case PredIn:
		out = append(out, p.Left.Fields()...)
		for _, v := range p.Values {
			out = append(out, v.Fields()...)
		}
	case PredBetween:
		out = append(out, p.Left.Fields()...)
		out = append(out, p.Low.Fields()...)
		out = append(out, p.High.Fields()...)
	case PredLike, PredNull, PredNonEmpty:
		out = append(out, p.Left.Fields()...)
	}
	return out
}

// MapFields returns a copy with every field replaced by fn(field)
func (p *Predicate) MapFields(fn func(Field) Field) *Predicate {
	if p == nil {
		return nil
	}
	c := p.Clone()
	c.mapFields(fn)
	return c
}

func (p *Predicate) mapFields(fn func(Field) Field) {
	for _, ch := range p.Children {
		ch.mapFields(fn)
	}
	p.Left.mapFields(fn)
	p.Right.mapFields(fn)
	p.Low.mapFields(fn)
	p.High.mapFields(fn)
	for i := range p.Values {
		p.Values[i].mapFields(fn)
	}
}
