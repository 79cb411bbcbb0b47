package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// PolicyStore defines the driven port for sync policy persistence.
type PolicyStore interface {
	// Upsert inserts or replaces the policy for its connection.
	Upsert(ctx context.Context, policy model.SyncPolicy) error

	// Get returns the policy for the given connection, or ErrNotFound.
	Get(ctx context.Context, connectionID string) (*model.SyncPolicy, error)

	// ListDue returns all active policies with NextRunAt at or before now.
	ListDue(ctx context.Context, now time.Time) ([]model.SyncPolicy, error)

	// ListAll returns every policy, active or not.
	ListAll(ctx context.Context) ([]model.SyncPolicy, error)

	// Delete removes the policy for the given connection.
	Delete(ctx context.Context, connectionID string) error
}
