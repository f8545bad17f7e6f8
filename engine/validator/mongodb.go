package validator

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// ParseMongoDB decodes a command document, or a bare aggregation pipeline
// wrapped as {"pipeline": [...]}, from MongoDB Extended JSON. Key order is kept.
func ParseMongoDB(query string) (bson.D, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("empty MongoDB query")
	}
	if strings.HasPrefix(trimmed, "[") {
		trimmed = `{"pipeline": ` + trimmed + `}`
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(trimmed), false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ValidateMongoDB validates MongoDB command/document syntax
func ValidateMongoDB(query string) error {
	_, err := ParseMongoDB(query)
	return err
}

// ValidateMongoDBWithDetails returns detailed validation result
func ValidateMongoDBWithDetails(query string) (*ValidationResult, error) {
	if _, err := ParseMongoDB(query); err != nil {
		return &ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	return &ValidationResult{Valid: true}, nil
}
