// Package strategy turns a join-bearing plan into the ordered candidate
// approaches shown next to the primary translation.
package strategy

import (
	"fmt"
	"strings"

	"github.com/omniql-engine/querycraft/engine/builders/mongodb"
	"github.com/omniql-engine/querycraft/engine/emitter"
	"github.com/omniql-engine/querycraft/engine/models"
	"github.com/omniql-engine/querycraft/mapping"
)

// Generate returns the candidate approaches for plan. primary is the direct
// $lookup translation already rendered by the caller. Plans without real joins
// get an empty list.
//
// One join yields [Embedded, Lookup, Denormalized]; two or more yield
// [Embedded, Lookup, ApplicationJoin].
func Generate(plan *models.Plan, primary string, opts mongodb.Options) ([]models.Approach, error) {
	approaches := []models.Approach{}
	if !plan.HasJoins() {
		return approaches, nil
	}

	embedded, err := Embedded(plan, opts)
	if err != nil {
		return nil, err
	}
	approaches = append(approaches, approach(models.StrategyEmbedded, embedded))
	approaches = append(approaches, approach(models.StrategyLookup, primary))

	if plan.JoinCount() == 1 {
		denormalized, err := Denormalized(plan, opts)
		if err != nil {
			return nil, err
		}
		approaches = append(approaches, approach(models.StrategyDenormalized, denormalized))
	} else {
		approaches = append(approaches, approach(models.StrategyApplicationJoin, ApplicationJoin(plan, opts)))
	}

	for _, a := range approaches {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	return approaches, nil
}

func approach(s models.Strategy, code string) models.Approach {
	tmpl := mapping.Strategies[string(s)]
	return models.Approach{
		Strategy: s,
		Title:    tmpl.Title,
		Code:     code,
		Pros:     append([]string(nil), tmpl.Pros...),
		Cons:     append([]string(nil), tmpl.Cons...),
		UseCase:  tmpl.UseCase,
	}
}

// render builds and prints a rewritten plan
func render(plan *models.Plan, opts mongodb.Options) (string, error) {
	plan.Reclassify()
	if err := plan.Validate(); err != nil {
		return "", err
	}
	st, err := mongodb.Build(plan, opts)
	if err != nil {
		return "", err
	}
	return emitter.Shell(st), nil
}

// ============================================================================
// EMBEDDED
// ============================================================================

// Embedded reads joined data from sub-documents named after each join alias
func Embedded(plan *models.Plan, opts mongodb.Options) (string, error) {
	p := plan.Clone()
	var shape []string
	for i := range p.Joins {
		j := &p.Joins[i]
		if j.Semi {
			continue
		}
		j.Embedded = true
		if j.ToOne {
			j.Unwind = false
			shape = append(shape, j.As+" as a sub-document")
		} else {
			shape = append(shape, j.As+" as an array")
		}
		if j.Kind == models.JoinInner {
			p.Filter = models.And(p.Filter, embeddedPresent(*j))
		}
	}
	code, err := render(p, opts)
	if err != nil {
		return "", fmt.Errorf("embedded approach: %w", err)
	}
	return fmt.Sprintf("// each %s document embeds %s\n%s", p.Collection, strings.Join(shape, " and "), code), nil
}

// embeddedPresent drops base documents an inner join would not match:
// a missing sub-document or an empty array
func embeddedPresent(j models.JoinSpec) *models.Predicate {
	at := models.FieldRef(models.Field{Column: j.As, Path: j.As})
	if j.ToOne {
		return &models.Predicate{Kind: models.PredNull, Left: at, Negated: true}
	}
	return &models.Predicate{Kind: models.PredNonEmpty, Left: at}
}
