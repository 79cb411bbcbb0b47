package pipeline

import (
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// baseCurrency is the normalization target for financial amounts.
const baseCurrency = "USD"

// currencyRates holds static conversion rates into the base currency.
// Rates are data; a live FX feed would be injected at the ingestion layer,
// never fetched here, because the pipeline performs no I/O.
var currencyRates = map[string]float64{
	"EUR": 1.09,
	"GBP": 1.27,
	"JPY": 0.0067,
	"CAD": 0.74,
	"AUD": 0.66,
	"CHF": 1.13,
}

// unitConversions maps source units to their metric target and factor.
var unitConversions = map[string]struct {
	target string
	factor float64
}{
	"lbs": {"kg", 0.45359237},
	"mi":  {"km", 1.609344},
	"ft":  {"m", 0.3048},
	"oz":  {"g", 28.349523},
}

// transform is one idempotent, composable unit transform. applies is the
// applicability predicate; when it fails the transform is skipped silently.
// apply mutates the payload in place.
type transform struct {
	name    string
	domains []model.ConnectionCategory // nil means every domain
	applies func(payload map[string]any) bool
	apply   func(payload map[string]any)
}

// transforms is the ordered transform table. Each transform's predicate must
// fail on its own output so re-running the table is a no-op.
var transforms = []transform{
	{
		name:    "normalize-currency",
		domains: []model.ConnectionCategory{model.CategoryFinancial},
		applies: func(p map[string]any) bool {
			cur, ok := p["currency"].(string)
			if !ok || cur == baseCurrency {
				return false
			}
			_, known := currencyRates[cur]
			if !known {
				return false
			}
			_, hasAmount := numericField(p, "amount")
			return hasAmount
		},
		apply: func(p map[string]any) {
			cur := p["currency"].(string)
			amount, _ := numericField(p, "amount")
			p["originalCurrency"] = cur
			p["originalAmount"] = amount
			p["currency"] = baseCurrency
			p["amount"] = amount * currencyRates[cur]
		},
	},
	{
		name:    "normalize-units",
		domains: []model.ConnectionCategory{model.CategoryHealth},
		applies: func(p map[string]any) bool {
			unit, ok := p["unit"].(string)
			if !ok {
				return false
			}
			_, known := unitConversions[unit]
			if !known {
				return false
			}
			_, hasValue := numericField(p, "value")
			return hasValue
		},
		apply: func(p map[string]any) {
			unit := p["unit"].(string)
			value, _ := numericField(p, "value")
			conv := unitConversions[unit]
			p["originalUnit"] = unit
			p["originalValue"] = value
			p["unit"] = conv.target
			p["value"] = value * conv.factor
		},
	},
	{
		name: "normalize-timestamp",
		applies: func(p map[string]any) bool {
			for _, key := range timestampKeys {
				raw, ok := p[key].(string)
				if !ok {
					continue
				}
				t, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					continue
				}
				if _, offset := t.Zone(); offset != 0 {
					return true
				}
			}
			return false
		},
		apply: func(p map[string]any) {
			for _, key := range timestampKeys {
				raw, ok := p[key].(string)
				if !ok {
					continue
				}
				t, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					continue
				}
				p[key] = t.UTC().Format(time.RFC3339)
			}
		},
	},
}

// timestampKeys are the payload fields normalized to UTC.
var timestampKeys = []string{"start_time", "end_time", "occurred_at", "recorded_at"}

// applyTransforms runs the transform table against the payload and returns
// the names of the transforms that actually applied.
func applyTransforms(domain model.ConnectionCategory, payload map[string]any) []string {
	applied := make([]string, 0, len(transforms))
	for _, t := range transforms {
		if !domainMatches(t.domains, domain) {
			continue
		}
		if !t.applies(payload) {
			continue
		}
		t.apply(payload)
		applied = append(applied, t.name)
	}
	return applied
}

func domainMatches(domains []model.ConnectionCategory, domain model.ConnectionCategory) bool {
	if len(domains) == 0 {
		return true
	}
	for _, d := range domains {
		if d == domain {
			return true
		}
	}
	return false
}
