package pipeline

import (
	"math"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// categoryRule is one entry in the ordered categorization table. Rules are
// evaluated first-match-wins, so more specific rules sit above general ones.
type categoryRule struct {
	name       string
	domains    []model.ConnectionCategory
	predicate  func(payload map[string]any) bool
	primary    string
	secondary  string
	confidence float64
	tags       []string
}

// categoryRules is the rule table. Categorization is data, not code: the
// structural heuristics live in predicates over payload keys, value signs
// and magnitudes.
var categoryRules = []categoryRule{
	{
		name:    "financial-expense",
		domains: []model.ConnectionCategory{model.CategoryFinancial},
		predicate: func(p map[string]any) bool {
			amount, ok := numericField(p, "amount")
			return ok && amount < 0
		},
		primary:    "financial",
		secondary:  "expense",
		confidence: 0.9,
		tags:       []string{"expense"},
	},
	{
		name:    "financial-income",
		domains: []model.ConnectionCategory{model.CategoryFinancial},
		predicate: func(p map[string]any) bool {
			amount, ok := numericField(p, "amount")
			return ok && amount > 0
		},
		primary:    "financial",
		secondary:  "income",
		confidence: 0.9,
		tags:       []string{"income"},
	},
	{
		name:    "health-activity",
		domains: []model.ConnectionCategory{model.CategoryHealth},
		predicate: func(p map[string]any) bool {
			return hasAnyKey(p, "steps", "distance", "workout")
		},
		primary:    "health",
		secondary:  "activity",
		confidence: 0.85,
		tags:       []string{"activity"},
	},
	{
		name:    "health-vitals",
		domains: []model.ConnectionCategory{model.CategoryHealth},
		predicate: func(p map[string]any) bool {
			return hasAnyKey(p, "heart_rate", "blood_pressure", "weight", "sleep")
		},
		primary:    "health",
		secondary:  "vitals",
		confidence: 0.85,
		tags:       []string{"vitals"},
	},
	{
		name:    "calendar-meeting",
		domains: []model.ConnectionCategory{model.CategoryCalendar},
		predicate: func(p map[string]any) bool {
			return hasAnyKey(p, "attendees", "meeting_url")
		},
		primary:    "calendar",
		secondary:  "meeting",
		confidence: 0.8,
		tags:       []string{"meeting"},
	},
	{
		name:    "calendar-event",
		domains: []model.ConnectionCategory{model.CategoryCalendar},
		predicate: func(p map[string]any) bool {
			return hasAnyKey(p, "title", "start_time")
		},
		primary:    "calendar",
		secondary:  "event",
		confidence: 0.7,
		tags:       []string{"event"},
	},
}

// categorize assigns a primary/secondary category by walking the rule table.
// When no rule matches, the domain itself becomes the primary category with
// low confidence.
func categorize(domain model.ConnectionCategory, payload map[string]any) (model.Categorization, []string) {
	for _, rule := range categoryRules {
		if !domainMatches(rule.domains, domain) {
			continue
		}
		if !rule.predicate(payload) {
			continue
		}
		return model.Categorization{
			Primary:    rule.primary,
			Secondary:  rule.secondary,
			Confidence: rule.confidence,
		}, rule.tags
	}

	return model.Categorization{
		Primary:    string(domain),
		Confidence: 0.3,
	}, nil
}

// highValueThreshold marks a financial amount as notable by magnitude.
const highValueThreshold = 1000.0

// isHighValue reports whether the payload carries an amount of large
// absolute magnitude.
func isHighValue(payload map[string]any) bool {
	amount, ok := numericField(payload, "amount")
	return ok && math.Abs(amount) >= highValueThreshold
}

func hasAnyKey(p map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := p[k]; ok {
			return true
		}
	}
	return false
}
