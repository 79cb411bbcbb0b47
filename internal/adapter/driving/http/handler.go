package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/lifesync/internal/adapter/driven/provider"
	"github.com/ericfisherdev/lifesync/internal/application"
	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// ownerHeader identifies the requesting owner. Every data-bearing endpoint
// requires it; records and connections are never visible across owners.
const ownerHeader = "X-Owner-ID"

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	registry  *provider.Registry
	connStore driven.ConnectionStore
	records   driven.RecordStore
	authSvc   *application.AuthService
	syncSvc   *application.SyncService
	ingestSvc *application.IngestService
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	registry *provider.Registry,
	connStore driven.ConnectionStore,
	records driven.RecordStore,
	authSvc *application.AuthService,
	syncSvc *application.SyncService,
	ingestSvc *application.IngestService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		registry:  registry,
		connStore: connStore,
		records:   records,
		authSvc:   authSvc,
		syncSvc:   syncSvc,
		ingestSvc: ingestSvc,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/providers", h.ListProviders)

	mux.HandleFunc("POST /api/v1/connections/authorize", h.Authorize)
	mux.HandleFunc("GET /api/v1/connections/callback", h.Callback)
	mux.HandleFunc("GET /api/v1/connections", h.ListConnections)
	mux.HandleFunc("GET /api/v1/connections/{id}", h.GetConnection)
	mux.HandleFunc("DELETE /api/v1/connections/{id}", h.DeleteConnection)
	mux.HandleFunc("POST /api/v1/connections/{id}/sync", h.TriggerSync)
	mux.HandleFunc("POST /api/v1/connections/{id}/reactivate", h.Reactivate)

	mux.HandleFunc("POST /api/v1/data", h.IngestRecord)
	mux.HandleFunc("GET /api/v1/data", h.QueryRecords)
	mux.HandleFunc("GET /api/v1/data/search", h.SearchRecords)
	mux.HandleFunc("GET /api/v1/data/stats", h.DataStats)
	mux.HandleFunc("GET /api/v1/data/{id}", h.GetRecord)
	mux.HandleFunc("DELETE /api/v1/data/{id}", h.DeleteRecord)

	mux.HandleFunc("GET /api/v1/sync/stats", h.SyncStats)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ownerID extracts the owner header, writing a 400 when absent.
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := strings.TrimSpace(r.Header.Get(ownerHeader))
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing "+ownerHeader+" header")
		return "", false
	}
	return owner, true
}

// ListProviders returns the supported provider catalog.
func (h *Handler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	ids := h.registry.IDs()
	resp := make([]ProviderResponse, 0, len(ids))
	for _, id := range ids {
		info, err := h.registry.Lookup(id)
		if err != nil {
			continue
		}
		resp = append(resp, ProviderResponse{
			ID:          info.ID,
			DisplayName: info.DisplayName,
			Domain:      string(info.Domain),
			DataTypes:   info.DataTypes,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Authorize starts an authorization handshake and returns the consent URL.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}

	url, state, err := h.authSvc.BeginAuthorization(r.Context(), owner, req.Provider, "")
	if err != nil {
		if errors.Is(err, application.ErrUnsupportedProvider) {
			writeError(w, http.StatusBadRequest, "unsupported provider: "+req.Provider)
			return
		}
		h.logger.Error("failed to begin authorization", "provider", req.Provider, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, AuthorizeResponse{AuthorizationURL: url, State: state})
}

// Callback completes an authorization handshake. The redirect arrives from
// the user's browser, so the owner is resolved from the state token rather
// than the owner header.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}

	owner, providerID, ok := h.authSvc.PendingInfo(state)
	if !ok {
		writeJSON(w, http.StatusBadRequest, CallbackResponse{
			Error: "Authorization state mismatch or expired",
		})
		return
	}

	result := h.authSvc.CompleteAuthorization(r.Context(), owner, providerID, code, state)
	resp := CallbackResponse{Success: result.Success, State: string(result.State), Error: result.Error}
	if result.Connection != nil {
		cr := toConnectionResponse(*result.Connection)
		resp.Connection = &cr
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// ListConnections returns the owner's connections.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	conns, err := h.connStore.ListForOwner(r.Context(), owner)
	if err != nil {
		h.logger.Error("failed to list connections", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ConnectionResponse, 0, len(conns))
	for _, conn := range conns {
		resp = append(resp, toConnectionResponse(conn))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConnection returns one of the owner's connections by id.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	conn, err := h.connStore.Get(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		h.logger.Error("failed to get connection", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toConnectionResponse(*conn))
}

// DeleteConnection revokes the provider token best-effort, then removes the
// connection, its credential, its policy, and every record it ingested.
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	h.authSvc.Revoke(r.Context(), owner, id)

	purged, err := h.ingestSvc.DeleteConnection(r.Context(), owner, id)
	if err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		h.logger.Error("failed to delete connection", "connection", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, DeleteConnectionResponse{RecordsPurged: purged})
}

// TriggerSync runs an out-of-band sync for one connection.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	// Confirm ownership before touching the scheduler.
	if _, err := h.connStore.Get(r.Context(), owner, id); err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		h.logger.Error("failed to get connection", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	switch err := h.syncSvc.TriggerSync(r.Context(), id); {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
	case errors.Is(err, application.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync already in progress")
	case errors.Is(err, application.ErrPolicyInactive):
		writeError(w, http.StatusConflict, "sync policy is disabled; reactivate it first")
	case errors.Is(err, application.ErrConnectionNotSyncable):
		writeError(w, http.StatusConflict, "connection is not in a syncable state")
	case errors.Is(err, driven.ErrNotFound):
		writeError(w, http.StatusNotFound, "sync policy not found")
	default:
		writeError(w, http.StatusBadGateway, "sync failed: "+err.Error())
	}
}

// Reactivate re-enables a sync policy disabled by repeated failures.
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	if _, err := h.connStore.Get(r.Context(), owner, id); err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		h.logger.Error("failed to get connection", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.syncSvc.ReactivatePolicy(r.Context(), id); err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sync policy not found")
			return
		}
		h.logger.Error("failed to reactivate policy", "connection", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// IngestRecord submits one raw record through the processing pipeline. A
// record rejected by validation yields 422 with the validation errors.
func (h *Handler) IngestRecord(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	raw := model.RawRecord{
		OwnerID:      owner,
		ConnectionID: req.ConnectionID,
		Domain:       model.ConnectionCategory(req.Domain),
		Timestamp:    req.Timestamp,
		Payload:      req.Payload,
	}

	result := h.ingestSvc.Ingest(r.Context(), raw)
	resp := IngestResponse{
		Valid:    result.Valid,
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}
	if result.Record != nil {
		rr := toRecordResponse(*result.Record)
		resp.Record = &rr
	}

	if !result.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// QueryRecords returns the owner's records filtered by domain, tags, and
// time range, newest first.
func (h *Handler) QueryRecords(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	opts, err := parseQueryOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.records.Query(owner, opts)
	if err != nil {
		h.logger.Error("failed to query records", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRecord returns one of the owner's records by id.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	rec, err := h.records.Get(owner, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		h.logger.Error("failed to get record", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(*rec))
}

// DeleteRecord removes one of the owner's records.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	if err := h.records.Delete(owner, r.PathValue("id")); err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		h.logger.Error("failed to delete record", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SearchRecords performs a substring search over the owner's records.
func (h *Handler) SearchRecords(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.records.Search(owner, query, limit)
	if err != nil {
		h.logger.Error("failed to search records", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// DataStats returns aggregate counts over the owner's records.
func (h *Handler) DataStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	stats, err := h.records.Stats(owner)
	if err != nil {
		h.logger.Error("failed to compute data stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	byDomain := make(map[string]int, len(stats.ByDomain))
	for domain, n := range stats.ByDomain {
		byDomain[string(domain)] = n
	}

	writeJSON(w, http.StatusOK, DataStatsResponse{
		Total:     stats.Total,
		ByDomain:  byDomain,
		TagCounts: stats.TagCounts,
		Oldest:    formatTime(stats.Oldest),
		Newest:    formatTime(stats.Newest),
	})
}

// SyncStats returns the sync scheduler's aggregate view.
func (h *Handler) SyncStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.syncSvc.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute sync stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SyncStatsResponse{
		Total:       stats.Total,
		Active:      stats.Active,
		Due:         stats.Due,
		Exhausted:   stats.Exhausted,
		NextRunAt:   formatTime(stats.NextRunAt),
		LastScanAt:  formatTime(stats.LastScanAt),
		TotalSynced: stats.TotalSynced,
	})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// parseQueryOptions reads the record query parameters: domain, tags (comma
// separated, AND semantics), from/to (RFC 3339), limit, offset.
func parseQueryOptions(r *http.Request) (driven.QueryOptions, error) {
	q := r.URL.Query()
	var opts driven.QueryOptions

	if v := q.Get("domain"); v != "" {
		opts.Domain = model.ConnectionCategory(v)
	}

	if v := q.Get("tags"); v != "" {
		for _, tag := range strings.Split(v, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				opts.Tags = append(opts.Tags, tag)
			}
		}
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errors.New("invalid from timestamp: expected RFC 3339")
		}
		opts.From = t
	}

	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errors.New("invalid to timestamp: expected RFC 3339")
		}
		opts.To = t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, errors.New("invalid limit")
		}
		opts.Limit = n
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("invalid offset")
		}
		opts.Offset = n
	}

	return opts, nil
}
