package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// ErrSyncInProgress is returned when a sync for the same connection is
// already executing. The caller lost the single-flight race; it must not
// retry blindly.
var ErrSyncInProgress = errors.New("sync already in progress for connection")

// ErrPolicyInactive is returned when a sync is requested for a connection
// whose policy has been disabled by reaching its failure threshold.
var ErrPolicyInactive = errors.New("sync policy is inactive")

// ErrConnectionNotSyncable is returned when the connection's status does
// not permit synchronization.
var ErrConnectionNotSyncable = errors.New("connection is not in a syncable state")

// SyncStats is an aggregate view over all sync policies, used for
// observability, not correctness.
type SyncStats struct {
	Total       int
	Active      int
	Due         int
	Exhausted   int
	NextRunAt   time.Time
	LastScanAt  time.Time
	TotalSynced int64
}

// SyncService decides when each connection synchronizes, executes syncs,
// and applies the retry/backoff and disable-on-exhaustion policy. It owns
// no timers at construction: Start begins the periodic driver and blocks
// until the context is canceled, so tests can drive ExecuteScheduledSyncs
// directly.
type SyncService struct {
	policyStore driven.PolicyStore
	connStore   driven.ConnectionStore
	secretStore driven.SecretStore
	client      driven.ProviderClient
	ingest      *IngestService
	auth        *AuthService

	tickInterval time.Duration
	syncTimeout  time.Duration

	scanning   atomic.Bool
	lastScanAt atomic.Int64
	synced     atomic.Int64

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-connection single-flight locks
}

// NewSyncService creates a SyncService with all required dependencies.
func NewSyncService(
	policyStore driven.PolicyStore,
	connStore driven.ConnectionStore,
	secretStore driven.SecretStore,
	client driven.ProviderClient,
	ingest *IngestService,
	auth *AuthService,
	tickInterval time.Duration,
	syncTimeout time.Duration,
) *SyncService {
	return &SyncService{
		policyStore:  policyStore,
		connStore:    connStore,
		secretStore:  secretStore,
		client:       client,
		ingest:       ingest,
		auth:         auth,
		tickInterval: tickInterval,
		syncTimeout:  syncTimeout,
		locks:        make(map[string]*sync.Mutex),
	}
}

// Start begins the scheduling loop: an immediate scan, then one per tick.
// Start blocks until the context is canceled.
func (s *SyncService) Start(ctx context.Context) {
	if err := s.ExecuteScheduledSyncs(ctx); err != nil {
		slog.Error("initial sync scan failed", "error", err)
	}

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync service stopped")
			return
		case <-ticker.C:
			if err := s.ExecuteScheduledSyncs(ctx); err != nil {
				slog.Error("sync scan failed", "error", err)
			}
		}
	}
}

// Schedule validates and upserts a policy. Active non-manual policies get
// a computed NextRunAt when none is set.
func (s *SyncService) Schedule(ctx context.Context, policy model.SyncPolicy) error {
	if policy.ConnectionID == "" {
		return fmt.Errorf("schedule: connection id is required")
	}
	if !model.ValidCadence(policy.Cadence) {
		return fmt.Errorf("schedule: unknown cadence %q", policy.Cadence)
	}
	if policy.MaxFailures <= 0 {
		policy.MaxFailures = model.DefaultMaxFailures
	}

	if policy.Active && policy.Cadence != model.CadenceManual && policy.NextRunAt.IsZero() {
		policy.NextRunAt = model.NextRunAfter(policy.Cadence, time.Now())
	}

	return s.policyStore.Upsert(ctx, policy)
}

// ExecuteScheduledSyncs scans active policies that are due and executes
// each sequentially. The scan itself is single-flight: a concurrent call
// while one is running is a no-op. One connection's failure never aborts
// the scan.
func (s *SyncService) ExecuteScheduledSyncs(ctx context.Context) error {
	if !s.scanning.CompareAndSwap(false, true) {
		return nil
	}
	defer s.scanning.Store(false)

	start := time.Now()
	s.lastScanAt.Store(start.Unix())

	due, err := s.policyStore.ListDue(ctx, start)
	if err != nil {
		return fmt.Errorf("list due policies: %w", err)
	}

	var failures int
	for _, policy := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.syncOne(ctx, policy.ConnectionID, false); err != nil {
			slog.Error("scheduled sync failed", "connection", policy.ConnectionID, "error", err)
			failures++
		}
	}

	if len(due) > 0 {
		slog.Info("sync scan complete",
			"due", len(due),
			"failures", failures,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}

	return nil
}

// TriggerSync executes an out-of-band sync for one connection, bypassing
// the NextRunAt check but still subject to the per-connection single-flight
// guarantee: a concurrent duplicate returns ErrSyncInProgress.
func (s *SyncService) TriggerSync(ctx context.Context, connectionID string) error {
	return s.syncOne(ctx, connectionID, true)
}

// ReactivatePolicy is the explicit re-enable for a policy disabled by
// failure exhaustion. It resets the failure count and recomputes the next
// run from the cadence.
func (s *SyncService) ReactivatePolicy(ctx context.Context, connectionID string) error {
	policy, err := s.policyStore.Get(ctx, connectionID)
	if err != nil {
		return err
	}

	policy.Active = true
	policy.FailureCount = 0
	policy.NextRunAt = model.NextRunAfter(policy.Cadence, time.Now())
	if err := s.policyStore.Upsert(ctx, *policy); err != nil {
		return err
	}

	slog.Info("policy reactivated", "connection", connectionID)
	return nil
}

// Stats aggregates policy counts and the earliest upcoming run.
func (s *SyncService) Stats(ctx context.Context) (SyncStats, error) {
	policies, err := s.policyStore.ListAll(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	now := time.Now()
	stats := SyncStats{
		Total:       len(policies),
		TotalSynced: s.synced.Load(),
	}
	if ts := s.lastScanAt.Load(); ts > 0 {
		stats.LastScanAt = time.Unix(ts, 0)
	}

	for _, policy := range policies {
		if policy.Exhausted() {
			stats.Exhausted++
		}
		if !policy.Active {
			continue
		}
		stats.Active++
		if policy.Due(now) {
			stats.Due++
			continue
		}
		if stats.NextRunAt.IsZero() || policy.NextRunAt.Before(stats.NextRunAt) {
			stats.NextRunAt = policy.NextRunAt
		}
	}

	return stats, nil
}

// connLock returns the mutex guarding one connection's executions.
func (s *SyncService) connLock(connectionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[connectionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[connectionID] = lock
	}
	return lock
}

// syncOne runs one connection's sync under its single-flight lock. manual
// bypasses the due check but not the active check.
func (s *SyncService) syncOne(ctx context.Context, connectionID string, manual bool) error {
	lock := s.connLock(connectionID)
	if !lock.TryLock() {
		if manual {
			return ErrSyncInProgress
		}
		// The scheduled pass lost a race against a manual trigger; the
		// work is already happening.
		return nil
	}
	defer lock.Unlock()

	policy, err := s.policyStore.Get(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	if !policy.Active {
		return ErrPolicyInactive
	}
	if !manual && !policy.Due(time.Now()) {
		// Re-checked under the lock: a manual trigger may have already
		// run and pushed NextRunAt out.
		return nil
	}

	conn, err := s.connStore.GetAny(ctx, connectionID)
	if err != nil {
		return fmt.Errorf("load connection: %w", err)
	}
	if !conn.Syncable() {
		return ErrConnectionNotSyncable
	}

	syncCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	defer cancel()

	ingested, syncErr := s.executeSync(syncCtx, conn)

	now := time.Now()
	if syncErr != nil {
		policy.RecordFailure(now)
		s.recordConnectionFailure(ctx, conn, syncErr, now)
		if !policy.Active {
			slog.Warn("sync policy exhausted",
				"connection", connectionID,
				"failures", policy.FailureCount,
			)
		}
	} else {
		policy.RecordSuccess(now)
		s.recordConnectionSuccess(ctx, conn, policy.NextRunAt, now)
		s.synced.Add(int64(ingested))
		slog.Info("sync complete", "connection", connectionID, "records", ingested)
	}

	if err := s.policyStore.Upsert(ctx, *policy); err != nil {
		return fmt.Errorf("persist policy after sync: %w", err)
	}

	return syncErr
}

// executeSync performs the provider-facing part of one sync: credential
// resolution (with refresh when expired), record fetch, and ingestion.
func (s *SyncService) executeSync(ctx context.Context, conn *model.Connection) (int, error) {
	token, err := s.resolveToken(ctx, conn)
	if err != nil {
		return 0, err
	}

	records, err := s.client.FetchRecords(ctx, *conn, token)
	if err != nil {
		return 0, fmt.Errorf("fetch records: %w", err)
	}

	var ingested int
	for _, raw := range records {
		result := s.ingest.Ingest(ctx, raw)
		if !result.Valid {
			slog.Warn("record rejected by pipeline",
				"connection", conn.ID,
				"errors", result.Errors,
			)
			continue
		}
		ingested++
	}

	return ingested, nil
}

// resolveToken retrieves the connection's access token, refreshing it first
// when the stored credential has expired. A missing or unrefreshable
// credential is a CredentialError: the connection requires manual
// reauthorization.
func (s *SyncService) resolveToken(ctx context.Context, conn *model.Connection) (string, error) {
	if conn.SecretID == "" {
		return "", fmt.Errorf("credential error: connection has no stored secret")
	}

	if s.secretStore.IsExpired(ctx, conn.SecretID, conn.OwnerID) {
		refreshed, err := s.auth.Refresh(ctx, conn.SecretID, conn.OwnerID)
		if err != nil {
			return "", fmt.Errorf("credential error: refresh failed: %w", err)
		}
		if refreshed == nil {
			return "", fmt.Errorf("credential error: token expired and not refreshable")
		}
		return refreshed.AccessToken, nil
	}

	raw, err := s.secretStore.Retrieve(ctx, conn.SecretID, conn.OwnerID)
	if err != nil {
		return "", fmt.Errorf("credential error: %w", err)
	}

	var token model.TokenPayload
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", fmt.Errorf("credential error: corrupt token payload: %w", err)
	}

	return token.AccessToken, nil
}

func (s *SyncService) recordConnectionSuccess(ctx context.Context, conn *model.Connection, nextRun, now time.Time) {
	conn.Status = model.ConnectionStatusConnected
	conn.LastSyncAt = now
	conn.NextSyncAt = nextRun
	conn.LastError = ""
	conn.UpdatedAt = now
	if err := s.connStore.Update(ctx, *conn); err != nil {
		slog.Error("persist connection after sync failed", "connection", conn.ID, "error", err)
	}
}

func (s *SyncService) recordConnectionFailure(ctx context.Context, conn *model.Connection, syncErr error, now time.Time) {
	conn.Status = model.ConnectionStatusError
	conn.LastError = syncErr.Error()
	conn.UpdatedAt = now
	if err := s.connStore.Update(ctx, *conn); err != nil {
		slog.Error("persist connection after failed sync", "connection", conn.ID, "error", err)
	}
}
