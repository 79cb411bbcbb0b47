package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// ClientCredential is one OAuth app's client id/secret pair for a provider.
type ClientCredential struct {
	ID     string
	Secret string
}

// OAuth drives the third-party authorization handshake for every registered
// provider: redirect URL construction, code exchange, refresh, and
// best-effort revocation.
type OAuth struct {
	registry    *Registry
	credentials map[string]ClientCredential // keyed by provider id
	redirectURL string
}

// NewOAuth creates the OAuth adapter. redirectURL is the callback this
// deployment registered with each provider.
func NewOAuth(registry *Registry, credentials map[string]ClientCredential, redirectURL string) *OAuth {
	return &OAuth{
		registry:    registry,
		credentials: credentials,
		redirectURL: redirectURL,
	}
}

// oauthConfig builds the x/oauth2 config for a provider.
func (o *OAuth) oauthConfig(info Info) *oauth2.Config {
	cred := o.credentials[info.ID]
	return &oauth2.Config{
		ClientID:     cred.ID,
		ClientSecret: cred.Secret,
		RedirectURL:  o.redirectURL,
		Scopes:       info.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   info.AuthURL,
			TokenURL:  info.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthURL builds the provider's authorization redirect URL: client id,
// redirect URI, space-joined scopes, response_type=code, the caller state,
// and any provider-specific extras declared in the registry.
func (o *OAuth) AuthURL(providerID, state string) (string, error) {
	info, err := o.registry.Lookup(providerID)
	if err != nil {
		return "", err
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(info.ExtraAuthArgs))
	for k, v := range info.ExtraAuthArgs {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return o.oauthConfig(info).AuthCodeURL(state, opts...), nil
}

// Exchange trades an authorization code for tokens at the provider's token
// endpoint. A non-2xx response surfaces as an error.
func (o *OAuth) Exchange(ctx context.Context, providerID, code string) (*model.TokenPayload, error) {
	info, err := o.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}

	token, err := o.oauthConfig(info).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	return fromOAuth2Token(token), nil
}

// Refresh obtains a new access token from a refresh token. Returns nil
// without error when the provider has no refresh semantics for this
// credential (no refresh token stored).
func (o *OAuth) Refresh(ctx context.Context, providerID, refreshToken string) (*model.TokenPayload, error) {
	if refreshToken == "" {
		return nil, nil
	}

	info, err := o.registry.Lookup(providerID)
	if err != nil {
		return nil, err
	}

	source := o.oauthConfig(info).TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		if isPermanentRefreshError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	payload := fromOAuth2Token(token)
	// Providers that do not rotate refresh tokens omit them from the
	// refresh response; keep the one we have.
	if payload.RefreshToken == "" {
		payload.RefreshToken = refreshToken
	}
	return payload, nil
}

// Revoke asks the provider to invalidate the token. Providers without a
// revocation endpoint succeed trivially.
func (o *OAuth) Revoke(ctx context.Context, providerID, accessToken string) error {
	info, err := o.registry.Lookup(providerID)
	if err != nil {
		return err
	}
	if info.RevokeURL == "" {
		return nil
	}
	return postRevocation(ctx, info.RevokeURL, url.Values{"token": {accessToken}})
}

func fromOAuth2Token(token *oauth2.Token) *model.TokenPayload {
	return &model.TokenPayload{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scope:        scopeString(token),
		ExpiresAt:    token.Expiry,
	}
}

func scopeString(token *oauth2.Token) string {
	if scope, ok := token.Extra("scope").(string); ok {
		return scope
	}
	return ""
}

// isPermanentRefreshError distinguishes a provider rejecting the refresh
// credential outright from a transient transport failure.
func isPermanentRefreshError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"revoked",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
