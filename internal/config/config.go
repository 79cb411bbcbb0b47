// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ericfisherdev/lifesync/internal/adapter/driven/provider"
)

// Config holds the application configuration. Variables are parsed from the
// LIFESYNC_ prefix, e.g. LIFESYNC_LISTEN_ADDR, LIFESYNC_SECRET_KEY.
type Config struct {
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8080"`
	DBPath          string        `envconfig:"DB_PATH" default:"lifesync.db"`
	SecretKey       string        `envconfig:"SECRET_KEY"`
	TickInterval    time.Duration `envconfig:"TICK_INTERVAL" default:"1m"`
	SyncTimeout     time.Duration `envconfig:"SYNC_TIMEOUT" default:"2m"`
	RedirectBaseURL string        `envconfig:"REDIRECT_BASE_URL" default:"http://127.0.0.1:8080"`

	// OAuthClients configures provider client credentials as a comma
	// separated list of provider:client_id:client_secret triples, e.g.
	// "plaid:abc:s3cret,fitbit:def:hunter2".
	OAuthClients string `envconfig:"OAUTH_CLIENTS"`
}

// HasEncryptionKey returns true when a secret store key is configured. The
// app starts without one, but secret operations fail until it is provided.
func (c *Config) HasEncryptionKey() bool {
	return c.SecretKey != ""
}

// EncryptionKey decodes the configured key. It must be 64 hex characters
// (32 bytes, AES-256). Returns nil when unset.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.SecretKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("LIFESYNC_SECRET_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("LIFESYNC_SECRET_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// OAuthCredentials parses the provider credential triples.
func (c *Config) OAuthCredentials() (map[string]provider.ClientCredential, error) {
	creds := make(map[string]provider.ClientCredential)
	if c.OAuthClients == "" {
		return creds, nil
	}
	for _, entry := range strings.Split(c.OAuthClients, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("LIFESYNC_OAUTH_CLIENTS entry %q is not provider:client_id:client_secret", entry)
		}
		creds[parts[0]] = provider.ClientCredential{ID: parts[1], Secret: parts[2]}
	}
	return creds, nil
}

// RedirectURL is the OAuth callback endpoint derived from the base URL.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.RedirectBaseURL, "/") + "/api/v1/connections/callback"
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LIFESYNC", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("LIFESYNC_TICK_INTERVAL must be positive, got %s", cfg.TickInterval)
	}
	if cfg.SyncTimeout <= 0 {
		return nil, fmt.Errorf("LIFESYNC_SYNC_TIMEOUT must be positive, got %s", cfg.SyncTimeout)
	}

	// Surface bad key material at startup, not on first secret write.
	if _, err := cfg.EncryptionKey(); err != nil {
		return nil, err
	}
	if _, err := cfg.OAuthCredentials(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
