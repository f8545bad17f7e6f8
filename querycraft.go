// Package querycraft translates SQL statements into MongoDB queries and
// MongoDB commands back into SQL.
//
//	res, err := querycraft.Convert("SELECT name FROM users WHERE age > 25")
//	fmt.Println(res.PrimaryMongoDB)
package querycraft

import (
	"context"

	"github.com/omniql-engine/querycraft/engine/lexer"
	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/engine/parser"
	"github.com/omniql-engine/querycraft/engine/planner"
	"github.com/omniql-engine/querycraft/engine/reverse"
	"github.com/omniql-engine/querycraft/engine/translator"
	"github.com/omniql-engine/querycraft/engine/validator"
)

type (
	Result        = models.ConversionResult
	Approach      = models.Approach
	ReverseResult = models.ReverseResult
	Config        = translator.Config
	Request       = translator.Request
	Dialect       = validator.Dialect
)

const (
	MySQL      = validator.MySQL
	PostgreSQL = validator.PostgreSQL
)

// Errors returned by Convert, discoverable with errors.As
type (
	LexError           = lexer.LexError
	InputTooLarge      = lexer.InputTooLarge
	ParseError         = parser.ParseError
	UnsupportedFeature = parser.UnsupportedFeature
	AmbiguousColumn    = planner.AmbiguousColumn
	UnknownTable       = planner.UnknownTable
)

// Errors returned by ConvertToSQL, matched with errors.Is
var (
	ErrNotSupported = reverse.ErrNotSupported
	ErrInvalidQuery = reverse.ErrParse
	ErrEmptyQuery   = reverse.ErrEmptyQuery
)

// DefaultConfig returns the settings Convert uses without options
func DefaultConfig() Config {
	return translator.DefaultConfig()
}

// Option adjusts a Config
type Option func(*Config)

// WithMaxTokens sets the token ceiling; n <= 0 disables it
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithRenameID maps SQL id columns to _id
func WithRenameID(on bool) Option {
	return func(c *Config) { c.RenameID = on }
}

// WithCaseInsensitiveLike makes LIKE patterns match regardless of case
func WithCaseInsensitiveLike(on bool) Option {
	return func(c *Config) { c.CaseInsensitiveLike = on }
}

// WithDialectCheck adds a note when the statement is not valid in d
func WithDialectCheck(d Dialect) Option {
	return func(c *Config) { c.ValidateDialect = d }
}

// Translator converts SQL with a fixed configuration. It is safe for
// concurrent use.
type Translator struct {
	tr *translator.Translator
}

// New creates a Translator
func New(cfg Config) *Translator {
	return &Translator{tr: translator.New(cfg)}
}

// Convert translates one SQL statement
func (t *Translator) Convert(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.tr.Translate(req)
}

// Convert translates sql with the default configuration adjusted by opts
func Convert(sql string, opts ...Option) (*Result, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg).Convert(context.Background(), Request{SQL: sql})
}

// ReverseOption adjusts a MongoDB to SQL conversion
type ReverseOption func(*reverse.Options)

// WithCollection names the table for a bare aggregation pipeline
func WithCollection(name string) ReverseOption {
	return func(o *reverse.Options) { o.Collection = name }
}

// ConvertToSQL translates a MongoDB command document or aggregation pipeline
// into SQL
func ConvertToSQL(query string, opts ...ReverseOption) (*ReverseResult, error) {
	var o reverse.Options
	for _, opt := range opts {
		opt(&o)
	}
	return reverse.ToSQL(query, o)
}

// Validate checks sql against a database grammar
func Validate(sql string, dialect Dialect) error {
	return validator.Validate(sql, dialect)
}
