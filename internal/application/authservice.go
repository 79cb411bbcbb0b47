// Package application contains use-case orchestration services.
package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/lifesync/internal/adapter/driven/provider"
	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// ErrUnsupportedProvider aliases the registry sentinel so driving adapters
// import only the application package.
var ErrUnsupportedProvider = provider.ErrUnsupportedProvider

// AuthState tracks where a pending authorization sits in the handshake.
type AuthState string

const (
	AuthStateAwaitingConsent AuthState = "awaiting_user_consent"
	AuthStateCodeReceived    AuthState = "code_received"
	AuthStateTokensExchanged AuthState = "tokens_exchanged"
	AuthStateVerified        AuthState = "connection_verified"
	AuthStateFailed          AuthState = "failed"
)

// pendingTTL bounds how long a started authorization may wait for its
// callback before the state token stops correlating.
const pendingTTL = 10 * time.Minute

// pendingAuth is one in-flight authorization handshake.
type pendingAuth struct {
	ownerID    string
	providerID string
	startedAt  time.Time
}

// ConnectionResult reports the outcome of completing an authorization.
// State names the stage the handshake reached; on failure it is
// AuthStateFailed and Error says why. Expected failures (unsupported
// provider, rejected exchange, failed connectivity test) are reported
// here, never raised.
type ConnectionResult struct {
	Success    bool
	State      AuthState
	Error      string
	Connection *model.Connection
}

// AuthService drives the third-party authorization handshake: building the
// redirect URL, exchanging the code for tokens, storing them encrypted,
// verifying connectivity, and creating the resulting connection.
type AuthService struct {
	registry    *provider.Registry
	oauth       *provider.OAuth
	client      driven.ProviderClient
	connStore   driven.ConnectionStore
	secretStore driven.SecretStore
	policyStore driven.PolicyStore

	mu      sync.Mutex
	pending map[string]*pendingAuth // keyed by state token
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	registry *provider.Registry,
	oauth *provider.OAuth,
	client driven.ProviderClient,
	connStore driven.ConnectionStore,
	secretStore driven.SecretStore,
	policyStore driven.PolicyStore,
) *AuthService {
	return &AuthService{
		registry:    registry,
		oauth:       oauth,
		client:      client,
		connStore:   connStore,
		secretStore: secretStore,
		policyStore: policyStore,
		pending:     make(map[string]*pendingAuth),
	}
}

// BeginAuthorization starts a handshake for the owner against a provider.
// When state is empty a fresh high-entropy token is generated. Returns the
// redirect URL the user must visit and the state token that will correlate
// the callback.
func (s *AuthService) BeginAuthorization(ctx context.Context, ownerID, providerID, state string) (string, string, error) {
	if _, err := s.registry.Lookup(providerID); err != nil {
		return "", "", err
	}

	if state == "" {
		var err error
		state, err = generateState()
		if err != nil {
			return "", "", fmt.Errorf("generate state: %w", err)
		}
	}

	redirectURL, err := s.oauth.AuthURL(providerID, state)
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	s.evictExpiredLocked()
	s.pending[state] = &pendingAuth{
		ownerID:    ownerID,
		providerID: providerID,
		startedAt:  time.Now(),
	}
	s.mu.Unlock()

	slog.Info("authorization started", "owner", ownerID, "provider", providerID)
	return redirectURL, state, nil
}

// CompleteAuthorization finishes the handshake: validates the state token,
// exchanges the code, stores the encrypted credential, runs a connectivity
// test, and creates a connected connection with the provider's declared
// capability list. Every expected failure yields a non-success result.
func (s *AuthService) CompleteAuthorization(ctx context.Context, ownerID, providerID, code, state string) ConnectionResult {
	info, err := s.registry.Lookup(providerID)
	if err != nil {
		return failedResult(AuthStateAwaitingConsent, ownerID, providerID, "Unsupported provider: "+providerID)
	}

	if !s.takePending(state, ownerID, providerID) {
		return failedResult(AuthStateAwaitingConsent, ownerID, providerID, "Authorization state mismatch or expired")
	}

	token, err := s.oauth.Exchange(ctx, providerID, code)
	if err != nil {
		return failedResult(AuthStateCodeReceived, ownerID, providerID, "Token exchange failed: "+err.Error())
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return failedResult(AuthStateTokensExchanged, ownerID, providerID, "Encode token payload: "+err.Error())
	}

	secretID, err := s.secretStore.Store(ctx, ownerID, providerID, model.SecretKindOAuth, payload, model.SecretMetadata{
		Scopes:    info.Scopes,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		return failedResult(AuthStateTokensExchanged, ownerID, providerID, "Store credentials: "+err.Error())
	}

	if err := s.client.TestConnectivity(ctx, providerID, token.AccessToken); err != nil {
		// The credential is useless if the provider rejects it; do not
		// leave it behind.
		if delErr := s.secretStore.Delete(ctx, secretID, ownerID); delErr != nil {
			slog.Error("cleanup of unverified secret failed", "secret", model.MaskCredential(secretID), "error", delErr)
		}
		return failedResult(AuthStateTokensExchanged, ownerID, providerID, "Connectivity test failed: "+err.Error())
	}

	now := time.Now()
	conn := model.Connection{
		ID:          model.NewConnectionID(),
		OwnerID:     ownerID,
		Category:    info.Domain,
		DisplayName: info.DisplayName,
		Provider:    providerID,
		Status:      model.ConnectionStatusConnected,
		SecretID:    secretID,
		Cadence:     model.CadenceDaily,
		DataTypes:   append([]string(nil), info.DataTypes...),
		NextSyncAt:  model.NextRunAfter(model.CadenceDaily, now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.connStore.Create(ctx, conn); err != nil {
		if delErr := s.secretStore.Delete(ctx, secretID, ownerID); delErr != nil {
			slog.Error("cleanup of orphaned secret failed", "error", delErr)
		}
		return failedResult(AuthStateTokensExchanged, ownerID, providerID, "Create connection: "+err.Error())
	}

	policy := model.SyncPolicy{
		ConnectionID: conn.ID,
		Cadence:      conn.Cadence,
		NextRunAt:    conn.NextSyncAt,
		Active:       true,
		MaxFailures:  model.DefaultMaxFailures,
	}
	if err := s.policyStore.Upsert(ctx, policy); err != nil {
		slog.Error("schedule policy for new connection failed", "connection", conn.ID, "error", err)
	}

	slog.Info("connection established",
		"owner", ownerID,
		"provider", providerID,
		"connection", conn.ID,
		"capabilities", len(info.Capabilities),
	)

	return ConnectionResult{Success: true, State: AuthStateVerified, Connection: &conn}
}

// failedResult logs a failed handshake with the stage it reached and builds
// the matching result.
func failedResult(reached AuthState, ownerID, providerID, msg string) ConnectionResult {
	slog.Warn("authorization failed",
		"owner", ownerID,
		"provider", providerID,
		"stage", string(reached),
		"reason", msg,
	)
	return ConnectionResult{State: AuthStateFailed, Error: msg}
}

// Refresh obtains a fresh access credential from the stored refresh token
// and persists the rotated payload. Returns nil when no refresh credential
// is available or the provider rejected the refresh; the caller decides
// whether that demotes the connection to error status.
func (s *AuthService) Refresh(ctx context.Context, secretID, ownerID string) (*model.TokenPayload, error) {
	secret, err := s.secretStore.Describe(ctx, secretID, ownerID)
	if err != nil {
		return nil, err
	}

	raw, err := s.secretStore.Retrieve(ctx, secretID, ownerID)
	if err != nil {
		return nil, err
	}

	var current model.TokenPayload
	if err := json.Unmarshal(raw, &current); err != nil {
		return nil, fmt.Errorf("decode stored token: %w", err)
	}
	if current.RefreshToken == "" {
		return nil, nil
	}

	refreshed, err := s.oauth.Refresh(ctx, secret.Provider, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, nil
	}

	payload, err := json.Marshal(refreshed)
	if err != nil {
		return nil, fmt.Errorf("encode refreshed token: %w", err)
	}

	meta := secret.Metadata
	meta.ExpiresAt = refreshed.ExpiresAt
	meta.LastRefreshAt = time.Now()
	if err := s.secretStore.Update(ctx, secretID, ownerID, payload, meta); err != nil {
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}

	slog.Info("token refreshed", "owner", ownerID, "provider", secret.Provider)
	return refreshed, nil
}

// Revoke performs best-effort token revocation with the provider, then
// unconditionally disconnects locally: status disconnected, secret deleted,
// policy deactivated. Returns false only when the connection is unknown.
func (s *AuthService) Revoke(ctx context.Context, ownerID, connectionID string) bool {
	conn, err := s.connStore.Get(ctx, ownerID, connectionID)
	if err != nil {
		return false
	}

	if conn.SecretID != "" {
		if raw, err := s.secretStore.Retrieve(ctx, conn.SecretID, ownerID); err == nil {
			var token model.TokenPayload
			if err := json.Unmarshal(raw, &token); err == nil {
				if err := s.client.RevokeToken(ctx, conn.Provider, token.AccessToken); err != nil {
					slog.Warn("provider revocation failed", "connection", connectionID, "error", err)
				}
			}
		}
		if err := s.secretStore.Delete(ctx, conn.SecretID, ownerID); err != nil && !errors.Is(err, driven.ErrNotFound) {
			slog.Error("delete secret on revoke failed", "connection", connectionID, "error", err)
		}
	}

	conn.Status = model.ConnectionStatusDisconnected
	conn.SecretID = ""
	conn.UpdatedAt = time.Now()
	if err := s.connStore.Update(ctx, *conn); err != nil {
		slog.Error("mark connection disconnected failed", "connection", connectionID, "error", err)
	}

	if policy, err := s.policyStore.Get(ctx, connectionID); err == nil {
		policy.Active = false
		if err := s.policyStore.Upsert(ctx, *policy); err != nil {
			slog.Error("deactivate policy on revoke failed", "connection", connectionID, "error", err)
		}
	}

	slog.Info("connection revoked", "owner", ownerID, "connection", connectionID)
	return true
}

// PendingInfo resolves the owner and provider behind a state token without
// consuming it. The provider's callback redirect arrives from the user's
// browser, so the state token is the only owner correlation available.
func (s *AuthService) PendingInfo(state string) (ownerID, providerID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, found := s.pending[state]
	if !found || time.Since(pa.startedAt) > pendingTTL {
		return "", "", false
	}
	return pa.ownerID, pa.providerID, true
}

// takePending consumes the pending authorization for the state token when
// it matches the caller and has not expired.
func (s *AuthService) takePending(state, ownerID, providerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.pending[state]
	if !ok {
		return false
	}
	delete(s.pending, state)

	if pa.ownerID != ownerID || pa.providerID != providerID {
		return false
	}
	return time.Since(pa.startedAt) <= pendingTTL
}

// evictExpiredLocked drops stale pending authorizations. Callers hold mu.
func (s *AuthService) evictExpiredLocked() {
	for state, pa := range s.pending {
		if time.Since(pa.startedAt) > pendingTTL {
			delete(s.pending, state)
		}
	}
}

// generateState produces a 32-byte URL-safe random correlation token.
func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
