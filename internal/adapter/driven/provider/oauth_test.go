package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

func testRegistry(tokenURL string) *Registry {
	return NewStaticRegistry(Info{
		ID:          "testprov",
		DisplayName: "Test Provider",
		Domain:      model.CategoryFinancial,
		AuthURL:     "https://auth.example.com/authorize",
		TokenURL:    tokenURL,
		APIBaseURL:  "https://api.example.com",
		Scopes:      []string{"read", "write"},
		ExtraAuthArgs: map[string]string{
			"access_type": "offline",
		},
		DataTypes: []string{"transactions"},
	})
}

func testCredentials() map[string]ClientCredential {
	return map[string]ClientCredential{
		"testprov": {ID: "client-id", Secret: "client-secret"},
	}
}

func TestOAuth_AuthURL(t *testing.T) {
	oauth := NewOAuth(testRegistry("https://token.example.com"), testCredentials(), "https://app.example.com/callback")

	raw, err := oauth.AuthURL("testprov", "state-token")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, "auth.example.com", parsed.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-token", q.Get("state"))
	assert.Equal(t, "read write", q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
}

func TestOAuth_AuthURL_UnknownProvider(t *testing.T) {
	oauth := NewOAuth(testRegistry("https://token.example.com"), testCredentials(), "https://app.example.com/callback")

	_, err := oauth.AuthURL("nope", "state")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestOAuth_Exchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "at-123",
			"refresh_token": "rt-456",
			"token_type": "Bearer",
			"expires_in": 3600,
			"scope": "read write"
		}`))
	}))
	defer srv.Close()

	oauth := NewOAuth(testRegistry(srv.URL), testCredentials(), "https://app.example.com/callback")

	token, err := oauth.Exchange(context.Background(), "testprov", "the-code")
	require.NoError(t, err)

	assert.Equal(t, "at-123", token.AccessToken)
	assert.Equal(t, "rt-456", token.RefreshToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "read write", token.Scope)
	assert.False(t, token.ExpiresAt.IsZero())
}

func TestOAuth_Exchange_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_request"}`))
	}))
	defer srv.Close()

	oauth := NewOAuth(testRegistry(srv.URL), testCredentials(), "https://app.example.com/callback")

	_, err := oauth.Exchange(context.Background(), "testprov", "bad-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token exchange failed")
}

func TestOAuth_Refresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-old", r.Form.Get("refresh_token"))

		// No refresh_token in the response: the provider does not rotate.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "at-new",
			"token_type": "Bearer",
			"expires_in": 3600
		}`))
	}))
	defer srv.Close()

	oauth := NewOAuth(testRegistry(srv.URL), testCredentials(), "https://app.example.com/callback")

	token, err := oauth.Refresh(context.Background(), "testprov", "rt-old")
	require.NoError(t, err)
	require.NotNil(t, token)

	assert.Equal(t, "at-new", token.AccessToken)
	assert.Equal(t, "rt-old", token.RefreshToken, "unrotated refresh token must be kept")
}

func TestOAuth_Refresh_NoRefreshToken(t *testing.T) {
	oauth := NewOAuth(testRegistry("https://token.example.com"), testCredentials(), "https://app.example.com/callback")

	token, err := oauth.Refresh(context.Background(), "testprov", "")
	assert.NoError(t, err)
	assert.Nil(t, token, "no refresh token means nothing to refresh, not an error")
}

func TestOAuth_Refresh_RevokedGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer srv.Close()

	oauth := NewOAuth(testRegistry(srv.URL), testCredentials(), "https://app.example.com/callback")

	token, err := oauth.Refresh(context.Background(), "testprov", "rt-revoked")
	assert.NoError(t, err, "a permanently rejected grant is not a transport failure")
	assert.Nil(t, token)
}
