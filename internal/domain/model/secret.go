package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SecretMetadata holds non-sensitive attributes of a stored credential.
type SecretMetadata struct {
	Scopes        []string  `json:"scopes,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	LastRefreshAt time.Time `json:"last_refresh_at,omitzero"`
}

// StoredSecret describes an encrypted credential blob. The decrypted payload
// never travels on this struct; adapters return it separately so listing
// operations cannot leak credential material.
type StoredSecret struct {
	ID        string
	OwnerID   string
	Provider  string
	Kind      SecretKind
	Metadata  SecretMetadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSecretID returns a fresh secret identifier.
func NewSecretID() string {
	return "sec_" + uuid.NewString()
}

// TokenPayload is the decrypted shape of an oauth-kind secret.
type TokenPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the embedded access token expiry has passed.
// A zero expiry means the provider issued a non-expiring token.
func (p *TokenPayload) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// MaskCredential produces a display-safe partial redaction of a credential
// value for logs and API responses: a fixed-length prefix and suffix stay
// visible and the middle is replaced. Values too short to mask safely are
// fully redacted.
func MaskCredential(value string) string {
	const visible = 4
	if len(value) < visible*3 {
		return strings.Repeat("*", 8)
	}
	return value[:visible] + strings.Repeat("*", 8) + value[len(value)-visible:]
}
