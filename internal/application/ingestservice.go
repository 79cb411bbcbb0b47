package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
	"github.com/ericfisherdev/lifesync/internal/pipeline"
)

// manualSourceReliability is the fixed reliability for records entered by
// hand rather than fetched from a provider.
const manualSourceReliability = 0.7

// IngestService pushes raw records through the processing pipeline and
// persists the survivors. It is the only writer of the record store.
type IngestService struct {
	connStore   driven.ConnectionStore
	secretStore driven.SecretStore
	policyStore driven.PolicyStore
	records     driven.RecordStore
}

// NewIngestService creates an IngestService.
func NewIngestService(
	connStore driven.ConnectionStore,
	secretStore driven.SecretStore,
	policyStore driven.PolicyStore,
	records driven.RecordStore,
) *IngestService {
	return &IngestService{
		connStore:   connStore,
		secretStore: secretStore,
		policyStore: policyStore,
		records:     records,
	}
}

// Ingest processes one raw record and stores it when valid. A record with
// no ConnectionID is treated as a manual entry. Validation failure is
// reported in the result, never as an error: bad data is an expected input.
func (s *IngestService) Ingest(ctx context.Context, raw model.RawRecord) pipeline.Result {
	source, err := s.resolveSource(ctx, raw)
	if err != nil {
		return pipeline.Result{
			Valid:  false,
			Errors: []string{fmt.Sprintf("unknown source: %v", err)},
		}
	}

	// Manual entries carry the synthetic source id so validation and the
	// per-connection record index treat them uniformly.
	if raw.ConnectionID == "" {
		raw.ConnectionID = source.ID
	}

	result := pipeline.Process(raw, source, time.Now())
	if !result.Valid {
		return result
	}

	if err := s.records.Store(*result.Record); err != nil {
		return pipeline.Result{
			Valid:  false,
			Errors: []string{fmt.Sprintf("store record: %v", err)},
		}
	}

	return result
}

// resolveSource builds the record's provenance descriptor. Reliability is
// derived from the connection's current status: a connection in an error
// state still syncs, but its data is weighted down.
func (s *IngestService) resolveSource(ctx context.Context, raw model.RawRecord) (model.SourceInfo, error) {
	if raw.ConnectionID == "" {
		return model.SourceInfo{
			ID:          "manual",
			Name:        "Manual Entry",
			Kind:        "manual",
			Reliability: manualSourceReliability,
		}, nil
	}

	conn, err := s.connStore.Get(ctx, raw.OwnerID, raw.ConnectionID)
	if err != nil {
		return model.SourceInfo{}, err
	}

	return model.SourceInfo{
		ID:          conn.ID,
		Name:        conn.DisplayName,
		Kind:        conn.Provider,
		Reliability: connectionReliability(conn.Status),
	}, nil
}

func connectionReliability(status model.ConnectionStatus) float64 {
	switch status {
	case model.ConnectionStatusConnected:
		return 0.9
	case model.ConnectionStatusError:
		return 0.5
	default:
		return 0.3
	}
}

// DeleteConnection removes a connection and everything derived from it:
// its secret, its sync policy, and every record it ingested. Partial
// failures after the connection row is gone are logged and tolerated so
// retrying the delete stays safe.
func (s *IngestService) DeleteConnection(ctx context.Context, ownerID, connectionID string) (int, error) {
	conn, err := s.connStore.Get(ctx, ownerID, connectionID)
	if err != nil {
		return 0, err
	}

	if err := s.connStore.Delete(ctx, ownerID, connectionID); err != nil {
		return 0, err
	}

	if conn.SecretID != "" {
		if err := s.secretStore.Delete(ctx, conn.SecretID, ownerID); err != nil && !errors.Is(err, driven.ErrNotFound) {
			slog.Error("delete secret during connection teardown", "connection", connectionID, "error", err)
		}
	}

	if err := s.policyStore.Delete(ctx, connectionID); err != nil && !errors.Is(err, driven.ErrNotFound) {
		slog.Error("delete policy during connection teardown", "connection", connectionID, "error", err)
	}

	purged, err := s.records.DeleteForConnection(ownerID, connectionID)
	if err != nil {
		slog.Error("purge records during connection teardown", "connection", connectionID, "error", err)
	}

	slog.Info("connection deleted", "connection", connectionID, "records_purged", purged)
	return purged, nil
}
