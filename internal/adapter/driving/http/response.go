package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ProviderResponse is the JSON representation of a supported provider.
type ProviderResponse struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Domain      string   `json:"domain"`
	DataTypes   []string `json:"data_types"`
}

// AuthorizeRequest is the JSON body for starting an authorization.
type AuthorizeRequest struct {
	Provider string `json:"provider"`
}

// AuthorizeResponse carries the redirect URL for the user's consent step.
type AuthorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// CallbackResponse reports the outcome of completing an authorization.
type CallbackResponse struct {
	Success    bool                `json:"success"`
	State      string              `json:"state,omitempty"`
	Error      string              `json:"error,omitempty"`
	Connection *ConnectionResponse `json:"connection,omitempty"`
}

// ConnectionResponse is the JSON representation of a provider connection.
type ConnectionResponse struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	DisplayName string   `json:"display_name"`
	Provider    string   `json:"provider"`
	Status      string   `json:"status"`
	Cadence     string   `json:"cadence"`
	DataTypes   []string `json:"data_types"`
	LastSyncAt  string   `json:"last_sync_at,omitempty"`
	NextSyncAt  string   `json:"next_sync_at,omitempty"`
	LastError   string   `json:"last_error,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// IngestRequest is the JSON body for submitting a record. ConnectionID is
// optional: absent means a manual entry.
type IngestRequest struct {
	ConnectionID string         `json:"connection_id,omitempty"`
	Domain       string         `json:"domain"`
	Timestamp    time.Time      `json:"timestamp"`
	Payload      map[string]any `json:"payload"`
}

// IngestResponse reports the pipeline outcome for one submitted record.
type IngestResponse struct {
	Valid    bool            `json:"valid"`
	Errors   []string        `json:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Record   *RecordResponse `json:"record,omitempty"`
}

// SourceResponse describes a record's provenance.
type SourceResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Reliability float64 `json:"reliability"`
}

// CategorizationResponse is the category assignment for a record.
type CategorizationResponse struct {
	Primary    string  `json:"primary"`
	Secondary  string  `json:"secondary,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ProcessingResponse describes how a record was produced.
type ProcessingResponse struct {
	ProcessedAt            string                 `json:"processed_at"`
	PipelineVersion        string                 `json:"pipeline_version"`
	ValidationScore        float64                `json:"validation_score"`
	TransformationsApplied []string               `json:"transformations_applied"`
	Categorization         CategorizationResponse `json:"categorization"`
}

// RecordResponse is the JSON representation of a normalized record.
type RecordResponse struct {
	ID         string             `json:"id"`
	Domain     string             `json:"domain"`
	Timestamp  string             `json:"timestamp"`
	Payload    map[string]any     `json:"payload"`
	Source     SourceResponse     `json:"source"`
	Confidence float64            `json:"confidence"`
	Tags       []string           `json:"tags"`
	Processing ProcessingResponse `json:"processing"`
	CreatedAt  string             `json:"created_at"`
}

// DataStatsResponse summarizes an owner's stored records.
type DataStatsResponse struct {
	Total     int            `json:"total"`
	ByDomain  map[string]int `json:"by_domain"`
	TagCounts map[string]int `json:"tag_counts"`
	Oldest    string         `json:"oldest,omitempty"`
	Newest    string         `json:"newest,omitempty"`
}

// SyncStatsResponse is the aggregate sync scheduler view.
type SyncStatsResponse struct {
	Total       int    `json:"total"`
	Active      int    `json:"active"`
	Due         int    `json:"due"`
	Exhausted   int    `json:"exhausted"`
	NextRunAt   string `json:"next_run_at,omitempty"`
	LastScanAt  string `json:"last_scan_at,omitempty"`
	TotalSynced int64  `json:"total_synced"`
}

// DeleteConnectionResponse reports a cascade delete.
type DeleteConnectionResponse struct {
	RecordsPurged int `json:"records_purged"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toConnectionResponse converts a domain Connection to its JSON representation.
func toConnectionResponse(conn model.Connection) ConnectionResponse {
	dataTypes := conn.DataTypes
	if dataTypes == nil {
		dataTypes = []string{}
	}

	return ConnectionResponse{
		ID:          conn.ID,
		Category:    string(conn.Category),
		DisplayName: conn.DisplayName,
		Provider:    conn.Provider,
		Status:      string(conn.Status),
		Cadence:     string(conn.Cadence),
		DataTypes:   dataTypes,
		LastSyncAt:  formatTime(conn.LastSyncAt),
		NextSyncAt:  formatTime(conn.NextSyncAt),
		LastError:   conn.LastError,
		CreatedAt:   conn.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// toRecordResponse converts a NormalizedRecord to its JSON representation.
func toRecordResponse(rec model.NormalizedRecord) RecordResponse {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	applied := rec.Processing.TransformationsApplied
	if applied == nil {
		applied = []string{}
	}

	return RecordResponse{
		ID:         rec.ID,
		Domain:     string(rec.Domain),
		Timestamp:  rec.Timestamp.UTC().Format(time.RFC3339),
		Payload:    rec.Payload,
		Source:     SourceResponse(rec.Source),
		Confidence: rec.Confidence,
		Tags:       tags,
		Processing: ProcessingResponse{
			ProcessedAt:            rec.Processing.ProcessedAt.UTC().Format(time.RFC3339),
			PipelineVersion:        rec.Processing.PipelineVersion,
			ValidationScore:        rec.Processing.ValidationScore,
			TransformationsApplied: applied,
			Categorization: CategorizationResponse{
				Primary:    rec.Processing.Categorization.Primary,
				Secondary:  rec.Processing.Categorization.Secondary,
				Confidence: rec.Processing.Categorization.Confidence,
			},
		},
		CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// formatTime renders a timestamp, or empty for the zero value so the field
// can be omitted.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
