package validator

import (
	"regexp"
	"strconv"

	"github.com/xwb1989/sqlparser"
)

var mysqlPosition = regexp.MustCompile(`at position (\d+)`)

// ValidateMySQL validates MySQL SQL syntax
func ValidateMySQL(query string) error {
	_, err := sqlparser.Parse(query)
	return err
}

// ValidateMySQLWithDetails returns detailed validation result
func ValidateMySQLWithDetails(query string) (*ValidationResult, error) {
	_, err := sqlparser.Parse(query)
	if err != nil {
		result := &ValidationResult{Valid: false, Error: err.Error()}
		if m := mysqlPosition.FindStringSubmatch(err.Error()); m != nil {
			result.Position, _ = strconv.Atoi(m[1])
		}
		return result, nil
	}

	return &ValidationResult{Valid: true}, nil
}
