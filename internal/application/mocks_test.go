package application_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// --- In-memory store fakes ---

type memConnStore struct {
	mu    sync.Mutex
	conns map[string]model.Connection
}

func newMemConnStore() *memConnStore {
	return &memConnStore{conns: make(map[string]model.Connection)}
}

func (s *memConnStore) Create(_ context.Context, conn model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.ID] = conn
	return nil
}

func (s *memConnStore) Get(_ context.Context, ownerID, connectionID string) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[connectionID]
	if !ok || conn.OwnerID != ownerID {
		return nil, driven.ErrNotFound
	}
	out := conn
	return &out, nil
}

func (s *memConnStore) GetAny(_ context.Context, connectionID string) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[connectionID]
	if !ok {
		return nil, driven.ErrNotFound
	}
	out := conn
	return &out, nil
}

func (s *memConnStore) ListForOwner(_ context.Context, ownerID string) ([]model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Connection
	for _, conn := range s.conns {
		if conn.OwnerID == ownerID {
			out = append(out, conn)
		}
	}
	return out, nil
}

func (s *memConnStore) Update(_ context.Context, conn model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.conns[conn.ID]
	if !ok || existing.OwnerID != conn.OwnerID {
		return driven.ErrNotFound
	}
	s.conns[conn.ID] = conn
	return nil
}

func (s *memConnStore) Delete(_ context.Context, ownerID, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[connectionID]
	if !ok || conn.OwnerID != ownerID {
		return driven.ErrNotFound
	}
	delete(s.conns, connectionID)
	return nil
}

type memSecret struct {
	record  model.StoredSecret
	payload []byte
}

type memSecretStore struct {
	mu      sync.Mutex
	secrets map[string]memSecret
	nextID  int
}

func newMemSecretStore() *memSecretStore {
	return &memSecretStore{secrets: make(map[string]memSecret)}
}

func (s *memSecretStore) Store(_ context.Context, ownerID, provider string, kind model.SecretKind, payload []byte, meta model.SecretMetadata) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := model.NewSecretID()
	s.secrets[id] = memSecret{
		record: model.StoredSecret{
			ID:       id,
			OwnerID:  ownerID,
			Provider: provider,
			Kind:     kind,
			Metadata: meta,
		},
		payload: append([]byte(nil), payload...),
	}
	return id, nil
}

func (s *memSecretStore) get(secretID, ownerID string) (memSecret, bool) {
	sec, ok := s.secrets[secretID]
	if !ok || sec.record.OwnerID != ownerID {
		return memSecret{}, false
	}
	return sec, true
}

func (s *memSecretStore) Retrieve(_ context.Context, secretID, ownerID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.get(secretID, ownerID)
	if !ok {
		return nil, driven.ErrNotFound
	}
	return append([]byte(nil), sec.payload...), nil
}

func (s *memSecretStore) Update(_ context.Context, secretID, ownerID string, payload []byte, meta model.SecretMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.get(secretID, ownerID)
	if !ok {
		return driven.ErrNotFound
	}
	sec.payload = append([]byte(nil), payload...)
	sec.record.Metadata = meta
	s.secrets[secretID] = sec
	return nil
}

func (s *memSecretStore) Delete(_ context.Context, secretID, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(secretID, ownerID); !ok {
		return driven.ErrNotFound
	}
	delete(s.secrets, secretID)
	return nil
}

func (s *memSecretStore) Describe(_ context.Context, secretID, ownerID string) (*model.StoredSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.get(secretID, ownerID)
	if !ok {
		return nil, driven.ErrNotFound
	}
	out := sec.record
	return &out, nil
}

func (s *memSecretStore) ListForOwner(_ context.Context, ownerID string) ([]model.StoredSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.StoredSecret
	for _, sec := range s.secrets {
		if sec.record.OwnerID == ownerID {
			out = append(out, sec.record)
		}
	}
	return out, nil
}

func (s *memSecretStore) IsExpired(_ context.Context, secretID, ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.get(secretID, ownerID)
	if !ok {
		return true
	}
	now := time.Now()
	if !sec.record.Metadata.ExpiresAt.IsZero() && now.After(sec.record.Metadata.ExpiresAt) {
		return true
	}
	if sec.record.Kind == model.SecretKindOAuth {
		var token model.TokenPayload
		if err := json.Unmarshal(sec.payload, &token); err != nil {
			return true
		}
		return token.Expired(now)
	}
	return false
}

func (s *memSecretStore) ValidateIntegrity(_ context.Context, secretID, ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get(secretID, ownerID)
	return ok
}

type memPolicyStore struct {
	mu       sync.Mutex
	policies map[string]model.SyncPolicy
}

func newMemPolicyStore() *memPolicyStore {
	return &memPolicyStore{policies: make(map[string]model.SyncPolicy)}
}

func (s *memPolicyStore) Upsert(_ context.Context, policy model.SyncPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.ConnectionID] = policy
	return nil
}

func (s *memPolicyStore) Get(_ context.Context, connectionID string) (*model.SyncPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy, ok := s.policies[connectionID]
	if !ok {
		return nil, driven.ErrNotFound
	}
	out := policy
	return &out, nil
}

func (s *memPolicyStore) ListDue(_ context.Context, now time.Time) ([]model.SyncPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.SyncPolicy
	for _, policy := range s.policies {
		if policy.Due(now) {
			due = append(due, policy)
		}
	}
	return due, nil
}

func (s *memPolicyStore) ListAll(_ context.Context) ([]model.SyncPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SyncPolicy
	for _, policy := range s.policies {
		out = append(out, policy)
	}
	return out, nil
}

func (s *memPolicyStore) Delete(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, connectionID)
	return nil
}

// --- Provider client fake ---

type fakeProviderClient struct {
	mu               sync.Mutex
	fetchCalls       int
	fetchRecords     []model.RawRecord
	fetchErr         error
	fetchStarted     chan struct{} // when set, signaled on fetch entry
	fetchRelease     chan struct{} // when set, fetch blocks until closed
	connectivityErr  error
	revokeErr        error
	revokedTokens    []string
	connectivityHits int
}

func (f *fakeProviderClient) FetchRecords(_ context.Context, conn model.Connection, _ string) ([]model.RawRecord, error) {
	f.mu.Lock()
	f.fetchCalls++
	started := f.fetchStarted
	release := f.fetchRelease
	records := f.fetchRecords
	err := f.fetchErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.RawRecord, len(records))
	copy(out, records)
	for i := range out {
		out[i].OwnerID = conn.OwnerID
		out[i].ConnectionID = conn.ID
	}
	return out, nil
}

func (f *fakeProviderClient) TestConnectivity(_ context.Context, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectivityHits++
	return f.connectivityErr
}

func (f *fakeProviderClient) RevokeToken(_ context.Context, _, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedTokens = append(f.revokedTokens, accessToken)
	return f.revokeErr
}

func (f *fakeProviderClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}
