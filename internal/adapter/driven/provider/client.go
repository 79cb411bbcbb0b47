package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProviderClient = (*Client)(nil)

// requestTimeout bounds any single provider call.
const requestTimeout = 30 * time.Second

// Client talks to registered providers' data APIs. GET responses pass
// through an in-memory HTTP cache so repeated polls of unchanged resources
// are served from validators, and each provider gets its own rate limiter
// sized from the registry.
type Client struct {
	registry   *Registry
	httpClient *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a provider client with a caching transport.
func NewClient(registry *Registry) *Client {
	return &Client{
		registry: registry,
		httpClient: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   requestTimeout,
		},
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the provider's rate limiter, creating it on first use.
func (c *Client) limiter(info Info) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lim, ok := c.limiters[info.ID]; ok {
		return lim
	}

	rps := info.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	lim := rate.NewLimiter(rate.Limit(rps), 1)
	c.limiters[info.ID] = lim
	return lim
}

// apiRecord is the provider-agnostic shape of one record in a data
// response. Provider-specific payloads ride in Data untouched; the
// pipeline owns their interpretation.
type apiRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
}

type dataResponse struct {
	Records []apiRecord `json:"records"`
}

// FetchRecords pulls the latest batch of raw records for the connection.
func (c *Client) FetchRecords(ctx context.Context, conn model.Connection, accessToken string) ([]model.RawRecord, error) {
	info, err := c.registry.Lookup(conn.Provider)
	if err != nil {
		return nil, err
	}

	if err := c.limiter(info).Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := info.APIBaseURL + "/records"
	if len(conn.DataTypes) > 0 {
		endpoint += "?types=" + url.QueryEscape(strings.Join(conn.DataTypes, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records from %s: %w", conn.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch records from %s: status %d", conn.Provider, resp.StatusCode)
	}

	var body dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode records from %s: %w", conn.Provider, err)
	}

	records := make([]model.RawRecord, 0, len(body.Records))
	for _, item := range body.Records {
		ts := item.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		records = append(records, model.RawRecord{
			OwnerID:      conn.OwnerID,
			ConnectionID: conn.ID,
			Domain:       conn.Category,
			Timestamp:    ts,
			Payload:      item.Data,
			Meta: model.RawMeta{
				Provider:    conn.Provider,
				PayloadType: item.Type,
				Version:     "1",
			},
		})
	}

	return records, nil
}

// TestConnectivity verifies the credential works against the provider by
// probing its base API.
func (c *Client) TestConnectivity(ctx context.Context, providerID, accessToken string) error {
	info, err := c.registry.Lookup(providerID)
	if err != nil {
		return err
	}

	if err := c.limiter(info).Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.APIBaseURL+"/ping", http.NoBody)
	if err != nil {
		return fmt.Errorf("create connectivity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connectivity test for %s: %w", providerID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("connectivity test for %s: status %d", providerID, resp.StatusCode)
	}

	return nil
}

// RevokeToken asks the provider to invalidate the credential.
func (c *Client) RevokeToken(ctx context.Context, providerID, accessToken string) error {
	info, err := c.registry.Lookup(providerID)
	if err != nil {
		return err
	}
	if info.RevokeURL == "" {
		return nil
	}
	return postRevocation(ctx, info.RevokeURL, url.Values{"token": {accessToken}})
}

// postRevocation form-posts to a provider revocation endpoint.
func postRevocation(ctx context.Context, revokeURL string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("revoke token: status %d", resp.StatusCode)
	}

	return nil
}
