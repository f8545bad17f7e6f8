package models

import (
	"fmt"
)

// Strategy names a candidate approach for a join-bearing query
type Strategy string

const (
	StrategyEmbedded        Strategy = "Embedded"
	StrategyLookup          Strategy = "Lookup"
	StrategyDenormalized    Strategy = "Denormalized"
	StrategyApplicationJoin Strategy = "ApplicationJoin"
)

// Approach is one candidate translation with its trade-offs
type Approach struct {
	Strategy Strategy `json:"-"`
	Title    string   `json:"title"`
	Code     string   `json:"code"`
	Pros     []string `json:"pros"`
	Cons     []string `json:"cons"`
	UseCase  string   `json:"use_case"`
}

// Validate checks that the approach is complete
func (a Approach) Validate() error {
	if a.Title == "" || a.Code == "" {
		return fmt.Errorf("invalid approach %q: title and code are required", a.Strategy)
	}
	if len(a.Pros) == 0 || len(a.Cons) == 0 {
		return fmt.Errorf("invalid approach %q: pros and cons are required", a.Strategy)
	}
	return nil
}

// ConversionResult is the externally visible output of a SQL conversion
type ConversionResult struct {
	PrimaryMongoDB    string     `json:"primary_mongodb"`
	Approaches        []Approach `json:"approaches"`
	Explanation       string     `json:"explanation"`
	Notes             []string   `json:"notes"`
	SchemaSuggestions string     `json:"schema_suggestions,omitempty"`
}

// Validate enforces the result invariants: join plans show at least two approaches
func (r *ConversionResult) Validate(joinBearing bool) error {
	if r.PrimaryMongoDB == "" {
		return fmt.Errorf("invalid result: empty primary code")
	}
	if joinBearing && len(r.Approaches) < 2 {
		return fmt.Errorf("invalid result: join query needs at least 2 approaches, got %d", len(r.Approaches))
	}
	for _, a := range r.Approaches {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ReverseResult is the output of a MongoDB to SQL conversion
type ReverseResult struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation"`
	Notes       []string `json:"notes"`
}
