package model

import (
	"time"

	"github.com/google/uuid"
)

// RawRecord is one unvalidated inbound payload from a provider or manual
// entry. It is ephemeral: only its normalized form is persisted.
type RawRecord struct {
	OwnerID      string
	ConnectionID string
	Domain       ConnectionCategory
	Timestamp    time.Time
	Payload      map[string]any
	Meta         RawMeta
}

// RawMeta carries optional provenance for a raw record.
type RawMeta struct {
	Provider    string
	PayloadType string
	Version     string
}

// SourceInfo describes where a normalized record came from.
type SourceInfo struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Reliability float64 `json:"reliability"`
}

// Categorization is the category assignment produced by the pipeline.
type Categorization struct {
	Primary    string  `json:"primary"`
	Secondary  string  `json:"secondary,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ProcessingInfo records how a raw payload became a normalized record.
type ProcessingInfo struct {
	ProcessedAt            time.Time      `json:"processed_at"`
	PipelineVersion        string         `json:"pipeline_version"`
	ValidationScore        float64        `json:"validation_score"`
	TransformationsApplied []string       `json:"transformations_applied"`
	Categorization         Categorization `json:"categorization"`
}

// NormalizedRecord is the validated, transformed, tagged, persisted unit of
// life data. Immutable once created except for explicit update or delete by
// its owner; never shared across owners.
type NormalizedRecord struct {
	ID         string
	OwnerID    string
	Domain     ConnectionCategory
	Timestamp  time.Time
	Payload    map[string]any
	Source     SourceInfo
	Confidence float64
	Tags       []string
	Processing ProcessingInfo
	CreatedAt  time.Time
}

// NewRecordID returns a fresh record identifier.
func NewRecordID() string {
	return "rec_" + uuid.NewString()
}

// HasTag reports whether the record carries the given tag.
func (r *NormalizedRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DayKey returns the UTC calendar-day bucket used by the day index.
func (r *NormalizedRecord) DayKey() string {
	return r.Timestamp.UTC().Format("2006-01-02")
}
