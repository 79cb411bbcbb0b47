package driven

import (
	"context"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// ProviderClient defines the driven port for talking to an external data
// provider once a connection is established. Implementations own transport
// concerns (caching, rate limits, timeouts); callers own credential lookup.
type ProviderClient interface {
	// FetchRecords pulls the latest batch of raw records for the connection
	// using the given bearer credential.
	FetchRecords(ctx context.Context, conn model.Connection, accessToken string) ([]model.RawRecord, error)

	// TestConnectivity verifies the credential actually works against the
	// provider before a connection is marked connected.
	TestConnectivity(ctx context.Context, providerID, accessToken string) error

	// RevokeToken asks the provider to invalidate the credential. Best
	// effort: callers log failures and disconnect locally regardless.
	RevokeToken(ctx context.Context, providerID, accessToken string) error
}
