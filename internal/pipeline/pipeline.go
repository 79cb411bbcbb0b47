// Package pipeline turns one raw inbound payload into a normalized record.
// The pipeline is a pure function of its input plus rule tables: it holds no
// shared mutable state and performs no I/O.
package pipeline

import (
	"maps"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// Version identifies the pipeline revision recorded on every processed record.
const Version = "1.0.0"

// Result is the outcome of processing one raw record. Validation failure is
// reported, not thrown: Record is nil and Errors explains why.
type Result struct {
	Record   *model.NormalizedRecord
	Valid    bool
	Errors   []string
	Warnings []string
}

// Process validates, transforms, categorizes, tags, and scores one raw
// record. The source descriptor is supplied by the caller because only the
// ingestion layer knows the connection's reliability.
func Process(raw model.RawRecord, source model.SourceInfo, now time.Time) Result {
	v := validate(raw, now)
	if !v.Valid {
		return Result{Valid: false, Errors: v.Errors, Warnings: v.Warnings}
	}

	// Transforms mutate a copy so callers can reuse the raw payload.
	payload := maps.Clone(raw.Payload)
	applied := applyTransforms(raw.Domain, payload)

	cat, suggested := categorize(raw.Domain, payload)
	tags := buildTags(raw.Domain, payload, cat, suggested, applied, now)

	record := &model.NormalizedRecord{
		ID:         model.NewRecordID(),
		OwnerID:    raw.OwnerID,
		Domain:     raw.Domain,
		Timestamp:  raw.Timestamp,
		Payload:    payload,
		Source:     source,
		Confidence: confidence(v, cat),
		Tags:       tags,
		Processing: model.ProcessingInfo{
			ProcessedAt:            now,
			PipelineVersion:        Version,
			ValidationScore:        validationScore(v),
			TransformationsApplied: applied,
			Categorization:         cat,
		},
		CreatedAt: now,
	}

	return Result{Record: record, Valid: true, Warnings: v.Warnings}
}

// confidence computes the record confidence score: base 0.5, +0.3 when
// valid, up to +0.2 scaled by categorization confidence, -0.1 per validation
// warning, clamped to [0,1]. The formula is fixed for compatibility with
// downstream consumers; do not tune it here.
func confidence(v Validation, cat model.Categorization) float64 {
	score := 0.5
	if v.Valid {
		score += 0.3
	}
	score += 0.2 * cat.Confidence
	score -= 0.1 * float64(len(v.Warnings))

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// validationScore maps a validation outcome to [0,1]: 1.0 clean, minus 0.1
// per warning.
func validationScore(v Validation) float64 {
	if !v.Valid {
		return 0
	}
	score := 1.0 - 0.1*float64(len(v.Warnings))
	if score < 0 {
		return 0
	}
	return score
}
