package server

import (
	"errors"
	"net/http"

	"github.com/omniql-engine/querycraft/engine/lexer"
	"github.com/omniql-engine/querycraft/engine/parser"
	"github.com/omniql-engine/querycraft/engine/planner"
	"github.com/omniql-engine/querycraft/engine/reverse"
)

// describe maps a conversion error to its status and response body.
// Anything not recognised is an internal failure.
func describe(err error) (int, errorBody) {
	var (
		lexErr    *lexer.LexError
		tooLarge  *lexer.InputTooLarge
		parseErr  *parser.ParseError
		feature   *parser.UnsupportedFeature
		ambiguous *planner.AmbiguousColumn
		unknown   *planner.UnknownTable
	)
	body := errorBody{Error: err.Error()}

	switch {
	case errors.As(err, &lexErr):
		body.Kind = "lex_error"
		body.Position = &lexErr.Position
	case errors.As(err, &tooLarge):
		body.Kind = "input_too_large"
	case errors.As(err, &parseErr):
		body.Kind = "parse_error"
		body.Position = &parseErr.Position
	case errors.As(err, &feature):
		body.Kind = "unsupported_feature"
		body.Position = &feature.Position
		body.Feature = feature.Feature
	case errors.As(err, &ambiguous):
		body.Kind = "ambiguous_column"
		body.Position = &ambiguous.Position
		body.Column = ambiguous.Column
	case errors.As(err, &unknown):
		body.Kind = "unknown_table"
		body.Position = &unknown.Position
	case errors.Is(err, reverse.ErrNotSupported):
		body.Kind = "not_supported"
	case errors.Is(err, reverse.ErrParse):
		body.Kind = "invalid_query"
	case errors.Is(err, reverse.ErrEmptyQuery):
		body.Kind = "empty_query"
	default:
		return http.StatusInternalServerError, errorBody{Error: "conversion failed", Kind: "internal", Details: err.Error()}
	}
	return http.StatusBadRequest, body
}
