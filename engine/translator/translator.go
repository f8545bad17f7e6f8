// Package translator runs the SQL to MongoDB pipeline: scan, parse, plan,
// build, render and generate approaches. A Translator holds only its
// configuration and is safe for concurrent use.
package translator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/omniql-engine/querycraft/engine/ast"
	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/emitter"
	"github.com/omniql-engine/querycraft/engine/lexer"
	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/engine/parser"
	"github.com/omniql-engine/querycraft/engine/planner"
	"github.com/omniql-engine/querycraft/engine/strategy"
	"github.com/omniql-engine/querycraft/engine/validator"
)

// DefaultMaxTokens bounds the input size before any parsing happens
const DefaultMaxTokens = 4096

// Config selects translation behavior
type Config struct {
	MaxTokens           int  // token ceiling; <= 0 disables it
	RenameID            bool // map SQL id columns to _id
	CaseInsensitiveLike bool // add $options: "i" to LIKE regexes
	ValidateDialect     validator.Dialect
}

// DefaultConfig returns the settings used when none are given
func DefaultConfig() Config {
	return Config{MaxTokens: DefaultMaxTokens}
}

// Fingerprint identifies the settings that change the output
func (c Config) Fingerprint() string {
	return fmt.Sprintf("t%d;id%t;ci%t;d%s", c.MaxTokens, c.RenameID, c.CaseInsensitiveLike, c.ValidateDialect)
}

// Request is one conversion request. QueryType is an advisory hint
// (select, join, aggregate, insert, update, delete); a mismatch only adds a note.
type Request struct {
	SQL       string
	QueryType string
}

// Compiled is a planned and built statement
type Compiled struct {
	Plan      *models.Plan
	Statement *mongodb.Statement
}

// Translator converts SQL to MongoDB
type Translator struct {
	cfg Config
}

// New creates a Translator
func New(cfg Config) *Translator {
	return &Translator{cfg: cfg}
}

// Config returns the translator settings
func (t *Translator) Config() Config {
	return t.cfg
}

// Compile runs the pipeline up to the built statement
func (t *Translator) Compile(sql string) (*Compiled, error) {
	stmt, err := t.Statement(sql)
	if err != nil {
		return nil, err
	}
	plan, err := planner.New(planner.Options{RenameID: t.cfg.RenameID}).Plan(stmt)
	if err != nil {
		return nil, locate(err, sql)
	}
	st, err := mongodb.Build(plan, t.builderOptions())
	if err != nil {
		return nil, err
	}
	return &Compiled{Plan: plan, Statement: st}, nil
}

// locate fills in line and column for planner errors, which only know the
// byte offset of the offending node
func locate(err error, sql string) error {
	var (
		unsupported *parser.UnsupportedFeature
		ambiguous   *planner.AmbiguousColumn
		unknown     *planner.UnknownTable
	)
	switch {
	case errors.As(err, &unsupported) && unsupported.Line == 0:
		unsupported.Line, unsupported.Column = lexer.LineColumn(sql, unsupported.Position)
	case errors.As(err, &ambiguous) && ambiguous.Line == 0:
		ambiguous.Line, ambiguous.Col = lexer.LineColumn(sql, ambiguous.Position)
	case errors.As(err, &unknown) && unknown.Line == 0:
		unknown.Line, unknown.Col = lexer.LineColumn(sql, unknown.Position)
	}
	return err
}

func (t *Translator) builderOptions() mongodb.Options {
	return mongodb.Options{CaseInsensitiveLike: t.cfg.CaseInsensitiveLike}
}

// Translate converts one SQL statement into the full conversion result
func (t *Translator) Translate(req Request) (*models.ConversionResult, error) {
	c, err := t.Compile(req.SQL)
	if err != nil {
		return nil, err
	}
	plan, st := c.Plan, c.Statement

	primary := emitter.Shell(st)
	approaches, err := strategy.Generate(plan, primary, t.builderOptions())
	if err != nil {
		return nil, err
	}

	notes := emitter.Notes(plan, st, emitter.NoteOptions{
		CaseInsensitiveLike: t.cfg.CaseInsensitiveLike,
		RenameID:            t.cfg.RenameID,
	})
	if note := hintNote(req.QueryType, plan); note != "" {
		notes = append(notes, note)
	}
	if note := t.dialectNote(req.SQL); note != "" {
		notes = append(notes, note)
	}

	result := &models.ConversionResult{
		PrimaryMongoDB:    primary,
		Approaches:        approaches,
		Explanation:       emitter.Explain(plan, st),
		Notes:             notes,
		SchemaSuggestions: emitter.SchemaSuggestions(plan),
	}
	if err := result.Validate(plan.HasJoins()); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *Translator) dialectNote(sql string) string {
	if t.cfg.ValidateDialect == "" {
		return ""
	}
	res, err := validator.ValidateWithDetails(sql, t.cfg.ValidateDialect)
	if err != nil || res.Valid {
		return ""
	}
	return fmt.Sprintf("The statement is not valid %s: %s", t.cfg.ValidateDialect.Display(), res.Error)
}

// ============================================================================
// QUERY TYPE HINT
// ============================================================================

// Classify names the query type a plan corresponds to
func Classify(plan *models.Plan) string {
	switch plan.Kind {
	case models.KindInsertOne, models.KindInsertMany:
		return "insert"
	case models.KindUpdateMany:
		return "update"
	case models.KindDeleteMany:
		return "delete"
	}
	switch {
	case plan.HasJoins():
		return "join"
	case plan.Grouped && !plan.Distinct:
		return "aggregate"
	}
	return "select"
}

var hintAliases = map[string]string{
	"select":       "select",
	"find":         "select",
	"join":         "join",
	"complex_join": "join",
	"lookup":       "join",
	"aggregate":    "aggregate",
	"aggregation":  "aggregate",
	"group":        "aggregate",
	"insert":       "insert",
	"update":       "update",
	"delete":       "delete",
}

func hintNote(hint string, plan *models.Plan) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return ""
	}
	got := Classify(plan)
	want, ok := hintAliases[hint]
	if !ok {
		return fmt.Sprintf("The query type %q is not recognised; the statement was translated as %s.", hint, article(got))
	}
	// a join or aggregate is still a select
	if want == got || (want == "select" && (got == "join" || got == "aggregate")) ||
		(want == "aggregate" && got == "join" && plan.Grouped) {
		return ""
	}
	return fmt.Sprintf("The query type %q does not match the statement, which was translated as %s.", hint, article(got))
}

func article(kind string) string {
	switch kind {
	case "join":
		return "a SELECT with JOIN"
	case "aggregate":
		return "an aggregation"
	case "insert", "update":
		return "an " + strings.ToUpper(kind)
	case "delete":
		return "a DELETE"
	}
	return "a plain SELECT"
}

// Statement parses sql into an AST without planning it
func (t *Translator) Statement(sql string) (ast.Statement, error) {
	tokens, err := lexer.Scan(sql, t.cfg.MaxTokens)
	if err != nil {
		return nil, err
	}
	return parser.New(tokens).Parse()
}
