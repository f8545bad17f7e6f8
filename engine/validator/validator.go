// Package validator checks statements against real database grammars. The
// checks are advisory: the translator accepts its own SQL subset and only
// reports dialect problems as notes.
package validator

import (
	"fmt"
	"strings"
)

// Dialect names a grammar a statement can be checked against
type Dialect string

const (
	MySQL      Dialect = "mysql"
	PostgreSQL Dialect = "postgresql"
	MongoDB    Dialect = "mongodb"
)

// Display returns the product name used in messages
func (d Dialect) Display() string {
	switch d {
	case MySQL:
		return "MySQL"
	case PostgreSQL:
		return "PostgreSQL"
	case MongoDB:
		return "MongoDB"
	}
	return string(d)
}

// ParseDialect accepts the common spellings of a dialect name. The empty
// string is valid and means no check.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgresql", "postgres", "pg":
		return PostgreSQL, nil
	case "mongodb", "mongo":
		return MongoDB, nil
	}
	return "", fmt.Errorf("unsupported dialect: %s (supported: mysql, postgresql, mongodb)", s)
}

// ValidationResult contains detailed validation info
type ValidationResult struct {
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
	Position int    `json:"position,omitempty"` // 1-based character position of the error, 0 when unknown
}

// Validate checks query against dialect
func Validate(query string, dialect Dialect) error {
	switch dialect {
	case MySQL:
		return ValidateMySQL(query)
	case PostgreSQL:
		return ValidatePostgreSQL(query)
	case MongoDB:
		return ValidateMongoDB(query)
	default:
		return fmt.Errorf("unsupported dialect: %q", dialect)
	}
}

// ValidateWithDetails returns detailed validation result
func ValidateWithDetails(query string, dialect Dialect) (*ValidationResult, error) {
	switch dialect {
	case MySQL:
		return ValidateMySQLWithDetails(query)
	case PostgreSQL:
		return ValidatePostgreSQLWithDetails(query)
	case MongoDB:
		return ValidateMongoDBWithDetails(query)
	default:
		return nil, fmt.Errorf("unsupported dialect: %q", dialect)
	}
}
