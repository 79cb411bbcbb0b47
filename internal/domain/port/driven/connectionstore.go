package driven

import (
	"context"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// ConnectionStore defines the driven port for connection persistence.
type ConnectionStore interface {
	// Create inserts a new connection record.
	Create(ctx context.Context, conn model.Connection) error

	// Get returns the connection with the given id scoped to the owner.
	// Returns ErrNotFound when absent or owned by a different user.
	Get(ctx context.Context, ownerID, connectionID string) (*model.Connection, error)

	// GetAny returns the connection by id regardless of owner. Used by the
	// scheduler, which operates across all users.
	GetAny(ctx context.Context, connectionID string) (*model.Connection, error)

	// ListForOwner returns all connections belonging to the owner.
	ListForOwner(ctx context.Context, ownerID string) ([]model.Connection, error)

	// Update replaces the stored connection. Returns ErrNotFound when the
	// connection does not exist.
	Update(ctx context.Context, conn model.Connection) error

	// Delete removes the connection. Returns ErrNotFound when absent or
	// owned by a different user.
	Delete(ctx context.Context, ownerID, connectionID string) error
}
