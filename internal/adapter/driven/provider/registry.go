// Package provider holds the static provider registry and the adapters that
// talk to external data providers: the OAuth handshake and the sync client.
package provider

import (
	"errors"
	"sort"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// ErrUnsupportedProvider is returned when a provider id is not in the registry.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// Info is one registry entry: everything provider-specific lives here and
// nowhere else. The table is configuration, not behavior.
type Info struct {
	ID            string
	DisplayName   string
	Domain        model.ConnectionCategory
	AuthURL       string
	TokenURL      string
	RevokeURL     string
	APIBaseURL    string
	Scopes        []string
	ExtraAuthArgs map[string]string // provider-specific authorize params
	DataTypes     []string
	Capabilities  []string
	// RequestsPerSecond caps sync traffic toward the provider.
	RequestsPerSecond float64
}

// Registry resolves provider ids to their declarations.
type Registry struct {
	entries map[string]Info
}

// NewRegistry returns the built-in provider table.
func NewRegistry() *Registry {
	return NewStaticRegistry(builtins...)
}

// NewStaticRegistry builds a registry from explicit entries. Used by tests
// to point providers at local endpoints.
func NewStaticRegistry(infos ...Info) *Registry {
	entries := make(map[string]Info, len(infos))
	for _, info := range infos {
		entries[info.ID] = info
	}
	return &Registry{entries: entries}
}

// Lookup returns the registry entry for a provider id.
func (r *Registry) Lookup(providerID string) (Info, error) {
	info, ok := r.entries[providerID]
	if !ok {
		return Info{}, ErrUnsupportedProvider
	}
	return info, nil
}

// IDs returns all registered provider ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// builtins is the production provider table.
var builtins = []Info{
	{
		ID:                "plaid",
		DisplayName:       "Plaid",
		Domain:            model.CategoryFinancial,
		AuthURL:           "https://cdn.plaid.com/link/v2/stable/link.html",
		TokenURL:          "https://production.plaid.com/item/public_token/exchange",
		APIBaseURL:        "https://production.plaid.com",
		Scopes:            []string{"transactions", "accounts"},
		DataTypes:         []string{"transactions", "balances"},
		Capabilities:      []string{"transactions", "balances", "account-metadata"},
		RequestsPerSecond: 5,
	},
	{
		ID:          "google-calendar",
		DisplayName: "Google Calendar",
		Domain:      model.CategoryCalendar,
		AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:    "https://oauth2.googleapis.com/token",
		RevokeURL:   "https://oauth2.googleapis.com/revoke",
		APIBaseURL:  "https://www.googleapis.com/calendar/v3",
		Scopes:      []string{"https://www.googleapis.com/auth/calendar.readonly"},
		ExtraAuthArgs: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
		DataTypes:         []string{"events"},
		Capabilities:      []string{"events", "availability"},
		RequestsPerSecond: 10,
	},
	{
		ID:                "fitbit",
		DisplayName:       "Fitbit",
		Domain:            model.CategoryHealth,
		AuthURL:           "https://www.fitbit.com/oauth2/authorize",
		TokenURL:          "https://api.fitbit.com/oauth2/token",
		RevokeURL:         "https://api.fitbit.com/oauth2/revoke",
		APIBaseURL:        "https://api.fitbit.com/1",
		Scopes:            []string{"activity", "heartrate", "sleep"},
		DataTypes:         []string{"activities", "heart_rate", "sleep"},
		Capabilities:      []string{"activities", "heart-rate", "sleep"},
		RequestsPerSecond: 2,
	},
	{
		ID:          "strava",
		DisplayName: "Strava",
		Domain:      model.CategoryHealth,
		AuthURL:     "https://www.strava.com/oauth/authorize",
		TokenURL:    "https://www.strava.com/oauth/token",
		RevokeURL:   "https://www.strava.com/oauth/deauthorize",
		APIBaseURL:  "https://www.strava.com/api/v3",
		Scopes:      []string{"activity:read"},
		ExtraAuthArgs: map[string]string{
			"approval_prompt": "auto",
		},
		DataTypes:         []string{"activities"},
		Capabilities:      []string{"activities", "routes"},
		RequestsPerSecond: 1,
	},
}
