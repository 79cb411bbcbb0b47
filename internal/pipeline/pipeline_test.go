package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func makeRaw(domain model.ConnectionCategory, payload map[string]any) model.RawRecord {
	return model.RawRecord{
		OwnerID:      "owner-a",
		ConnectionID: "conn_1",
		Domain:       domain,
		Timestamp:    testNow.Add(-time.Hour),
		Payload:      payload,
	}
}

func testSource() model.SourceInfo {
	return model.SourceInfo{ID: "conn_1", Name: "Plaid", Kind: "plaid", Reliability: 0.9}
}

func TestProcess_FinancialExpense(t *testing.T) {
	raw := makeRaw(model.CategoryFinancial, map[string]any{
		"amount":   -42.50,
		"currency": "USD",
		"merchant": "Corner Cafe",
	})

	result := Process(raw, testSource(), testNow)
	require.True(t, result.Valid)
	require.NotNil(t, result.Record)
	rec := result.Record

	assert.Equal(t, "financial", rec.Processing.Categorization.Primary)
	assert.Equal(t, "expense", rec.Processing.Categorization.Secondary)
	assert.InDelta(t, 0.9, rec.Processing.Categorization.Confidence, 1e-9)

	assert.True(t, rec.HasTag("expense"))
	assert.True(t, rec.HasTag("negative"))
	assert.True(t, rec.HasTag("has:amount"))
	assert.True(t, rec.HasTag("has:merchant"))
	assert.False(t, rec.HasTag("high-value"))
	assert.True(t, rec.HasTag("year:2026"))
	assert.True(t, rec.HasTag("month:8"))
	assert.True(t, rec.HasTag("day:15"))

	// USD input: the currency transform must not fire.
	assert.Empty(t, rec.Processing.TransformationsApplied)
	assert.Equal(t, -42.50, rec.Payload["amount"])

	assert.Equal(t, Version, rec.Processing.PipelineVersion)
	assert.Equal(t, 1.0, rec.Processing.ValidationScore)
	// 0.5 base + 0.3 valid + 0.2*0.9 category.
	assert.InDelta(t, 0.98, rec.Confidence, 1e-9)
}

func TestProcess_CurrencyNormalization(t *testing.T) {
	raw := makeRaw(model.CategoryFinancial, map[string]any{
		"amount":   100.0,
		"currency": "EUR",
	})

	result := Process(raw, testSource(), testNow)
	require.True(t, result.Valid)
	rec := result.Record

	assert.Contains(t, rec.Processing.TransformationsApplied, "normalize-currency")
	assert.Equal(t, "USD", rec.Payload["currency"])
	assert.InDelta(t, 109.0, rec.Payload["amount"].(float64), 1e-9)
	assert.Equal(t, "EUR", rec.Payload["originalCurrency"])
	assert.Equal(t, 100.0, rec.Payload["originalAmount"])
	assert.True(t, rec.HasTag("transformed:normalize-currency"))
	assert.True(t, rec.HasTag("income"))
}

func TestProcess_CurrencyNormalizationIsIdempotent(t *testing.T) {
	payload := map[string]any{"amount": 100.0, "currency": "EUR"}

	first := Process(makeRaw(model.CategoryFinancial, payload), testSource(), testNow)
	require.True(t, first.Valid)

	// Feed the normalized payload back through: nothing may change.
	second := Process(makeRaw(model.CategoryFinancial, first.Record.Payload), testSource(), testNow)
	require.True(t, second.Valid)

	assert.Empty(t, second.Record.Processing.TransformationsApplied)
	assert.InDelta(t,
		first.Record.Payload["amount"].(float64),
		second.Record.Payload["amount"].(float64), 1e-9)
}

func TestProcess_DoesNotMutateInputPayload(t *testing.T) {
	payload := map[string]any{"amount": 100.0, "currency": "EUR"}
	raw := makeRaw(model.CategoryFinancial, payload)

	result := Process(raw, testSource(), testNow)
	require.True(t, result.Valid)

	assert.Equal(t, 100.0, payload["amount"], "caller's payload must stay untouched")
	assert.Equal(t, "EUR", payload["currency"])
}

func TestProcess_HealthUnitConversion(t *testing.T) {
	raw := makeRaw(model.CategoryHealth, map[string]any{
		"weight": true,
		"value":  150.0,
		"unit":   "lbs",
	})

	result := Process(raw, testSource(), testNow)
	require.True(t, result.Valid)
	rec := result.Record

	assert.Contains(t, rec.Processing.TransformationsApplied, "normalize-units")
	assert.Equal(t, "kg", rec.Payload["unit"])
	assert.InDelta(t, 68.0388555, rec.Payload["value"].(float64), 1e-6)
	assert.Equal(t, "vitals", rec.Processing.Categorization.Secondary)
}

func TestProcess_CalendarTimestampNormalization(t *testing.T) {
	raw := makeRaw(model.CategoryCalendar, map[string]any{
		"title":      "Standup",
		"start_time": "2026-08-15T09:00:00+02:00",
		"attendees":  []any{"alice", "bob"},
	})

	result := Process(raw, testSource(), testNow)
	require.True(t, result.Valid)
	rec := result.Record

	assert.Contains(t, rec.Processing.TransformationsApplied, "normalize-timestamp")
	assert.Equal(t, "2026-08-15T07:00:00Z", rec.Payload["start_time"])

	// attendees outranks the generic event rule.
	assert.Equal(t, "meeting", rec.Processing.Categorization.Secondary)
	assert.True(t, rec.HasTag("meeting"))
}

func TestProcess_HighValueTag(t *testing.T) {
	raw := makeRaw(model.CategoryFinancial, map[string]any{"amount": -2500.0})

	result := Process(raw, testSource(), testNow)
	require.True(t, result.Valid)

	assert.True(t, result.Record.HasTag("high-value"))
	assert.True(t, result.Record.HasTag("negative"))
}

func TestProcess_InvalidRecord(t *testing.T) {
	raw := makeRaw(model.CategoryFinancial, map[string]any{"amount": "not a number"})

	result := Process(raw, testSource(), testNow)
	assert.False(t, result.Valid)
	assert.Nil(t, result.Record)
	assert.Contains(t, result.Errors, "financial records require a numeric amount")
}

func TestProcess_MissingRequiredFields(t *testing.T) {
	result := Process(model.RawRecord{}, testSource(), testNow)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 5)
}

func TestProcess_BadCurrencyCode(t *testing.T) {
	raw := makeRaw(model.CategoryFinancial, map[string]any{
		"amount":   10.0,
		"currency": "dollars",
	})

	result := Process(raw, testSource(), testNow)
	assert.False(t, result.Valid)
}

func TestProcess_NegativeHealthMeasure(t *testing.T) {
	raw := makeRaw(model.CategoryHealth, map[string]any{"steps": -100.0})

	result := Process(raw, testSource(), testNow)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "non-negative")
}

func TestProcess_StaleRecordWarning(t *testing.T) {
	raw := makeRaw(model.CategoryFinancial, map[string]any{"amount": -10.0})
	raw.Timestamp = testNow.Add(-8 * 24 * time.Hour)

	result := Process(raw, testSource(), testNow)
	require.True(t, result.Valid, "staleness is a warning, not an error")
	require.Len(t, result.Warnings, 1)

	rec := result.Record
	assert.InDelta(t, 0.9, rec.Processing.ValidationScore, 1e-9)
	// 0.5 + 0.3 + 0.2*0.9 - 0.1 warning.
	assert.InDelta(t, 0.88, rec.Confidence, 1e-9)
}

func TestProcess_FallbackCategorization(t *testing.T) {
	raw := makeRaw(model.CategorySocial, map[string]any{"post": "hello"})

	result := Process(raw, testSource(), testNow)
	require.True(t, result.Valid)
	rec := result.Record

	assert.Equal(t, "social", rec.Processing.Categorization.Primary)
	assert.Empty(t, rec.Processing.Categorization.Secondary)
	assert.InDelta(t, 0.3, rec.Processing.Categorization.Confidence, 1e-9)
	// 0.5 + 0.3 + 0.2*0.3.
	assert.InDelta(t, 0.86, rec.Confidence, 1e-9)
}

func TestProcess_TagsAreSortedAndUnique(t *testing.T) {
	raw := makeRaw(model.CategoryFinancial, map[string]any{"amount": -5.0})

	result := Process(raw, testSource(), testNow)
	require.True(t, result.Valid)

	tags := result.Record.Tags
	seen := make(map[string]bool, len(tags))
	for i, tag := range tags {
		assert.False(t, seen[tag], "duplicate tag %q", tag)
		seen[tag] = true
		if i > 0 {
			assert.LessOrEqual(t, tags[i-1], tag, "tags must be sorted")
		}
	}
}
