package pipeline

import (
	"fmt"
	"regexp"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// staleAfter is the record age past which validation emits a warning.
const staleAfter = 7 * 24 * time.Hour

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Validation is the outcome of validating one raw record.
type Validation struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// domainRule is one domain-specific validation check.
type domainRule struct {
	name  string
	check func(payload map[string]any) string // returns "" when the rule passes
}

// domainRules maps each data domain to its validation rules. The rule set is
// data: adding a domain means adding entries here, not new control flow.
var domainRules = map[model.ConnectionCategory][]domainRule{
	model.CategoryFinancial: {
		{
			name: "amount-numeric",
			check: func(p map[string]any) string {
				if _, ok := numericField(p, "amount"); !ok {
					return "financial records require a numeric amount"
				}
				return ""
			},
		},
		{
			name: "currency-code",
			check: func(p map[string]any) string {
				cur, ok := p["currency"].(string)
				if !ok {
					return "" // currency is optional
				}
				if !currencyPattern.MatchString(cur) {
					return fmt.Sprintf("currency %q is not a 3-letter code", cur)
				}
				return ""
			},
		},
	},
	model.CategoryHealth: {
		{
			name: "non-negative-measures",
			check: func(p map[string]any) string {
				for _, key := range []string{"steps", "heart_rate", "calories", "distance"} {
					if v, ok := numericField(p, key); ok && v < 0 {
						return fmt.Sprintf("health field %q must be non-negative", key)
					}
				}
				return ""
			},
		},
	},
	model.CategoryCalendar: {
		{
			name: "event-title",
			check: func(p map[string]any) string {
				if title, ok := p["title"].(string); ok && title == "" {
					return "calendar event title must not be empty"
				}
				return ""
			},
		},
	},
}

// validate runs required-field checks and the domain rule table over one raw
// record. A record older than seven days is a warning, not an error.
func validate(raw model.RawRecord, now time.Time) Validation {
	var v Validation

	if raw.OwnerID == "" {
		v.Errors = append(v.Errors, "owner id is required")
	}
	if raw.ConnectionID == "" {
		v.Errors = append(v.Errors, "source connection id is required")
	}
	if raw.Domain == "" {
		v.Errors = append(v.Errors, "domain is required")
	}
	if raw.Timestamp.IsZero() {
		v.Errors = append(v.Errors, "timestamp is required")
	}
	if len(raw.Payload) == 0 {
		v.Errors = append(v.Errors, "payload is required")
	}

	if len(v.Errors) == 0 {
		for _, rule := range domainRules[raw.Domain] {
			if msg := rule.check(raw.Payload); msg != "" {
				v.Errors = append(v.Errors, msg)
			}
		}
	}

	if !raw.Timestamp.IsZero() && now.Sub(raw.Timestamp) > staleAfter {
		v.Warnings = append(v.Warnings, "record is older than 7 days")
	}

	v.Valid = len(v.Errors) == 0
	return v
}

// numericField extracts a float64 from any of the numeric shapes a decoded
// JSON payload may carry.
func numericField(p map[string]any, key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
