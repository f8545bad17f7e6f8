package validator

import (
	"errors"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	pgparser "github.com/pganalyze/pg_query_go/v5/parser"
)

// ValidatePostgreSQL validates PostgreSQL SQL syntax
func ValidatePostgreSQL(query string) error {
	_, err := pg_query.Parse(query)
	return err
}

// ValidatePostgreSQLWithDetails returns detailed validation result
func ValidatePostgreSQLWithDetails(query string) (*ValidationResult, error) {
	_, err := pg_query.Parse(query)
	if err != nil {
		result := &ValidationResult{Valid: false, Error: err.Error()}
		var pgErr *pgparser.Error
		if errors.As(err, &pgErr) {
			result.Position = pgErr.Cursorpos
		}
		return result, nil
	}

	return &ValidationResult{Valid: true}, nil
}
