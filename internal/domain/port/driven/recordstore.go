package driven

import (
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// QueryOptions narrows a record query. Tags use AND semantics: a record must
// carry every requested tag. A zero Limit defaults to 100.
type QueryOptions struct {
	Domain model.ConnectionCategory
	Tags   []string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// DataStats summarizes an owner's stored records.
type DataStats struct {
	Total     int
	ByDomain  map[model.ConnectionCategory]int
	TagCounts map[string]int
	Oldest    time.Time
	Newest    time.Time
}

// RecordStore defines the driven port for normalized record persistence and
// indexed querying. The reference adapter is in-process; a durable engine
// must keep the primary table and every secondary index atomic per call.
type RecordStore interface {
	// Store persists a new record and registers it in all indexes.
	Store(record model.NormalizedRecord) error

	// Get returns the record by id scoped to the owner, or ErrNotFound.
	Get(ownerID, recordID string) (*model.NormalizedRecord, error)

	// Update replaces an existing record, removing then reinserting every
	// index membership so stale tag/domain/day entries cannot survive.
	Update(record model.NormalizedRecord) error

	// Delete removes the record and all of its index memberships.
	Delete(ownerID, recordID string) error

	// Query returns the owner's records matching the options, sorted by
	// timestamp descending, paginated.
	Query(ownerID string, opts QueryOptions) ([]model.NormalizedRecord, error)

	// DeleteForConnection removes every record ingested through the given
	// connection. Used when a connection is deleted.
	DeleteForConnection(ownerID, connectionID string) (int, error)

	// Stats returns aggregate counts over the owner's records.
	Stats(ownerID string) (DataStats, error)

	// Search performs a case-insensitive substring match over tags and a
	// string serialization of each payload.
	Search(ownerID, query string, limit int) ([]model.NormalizedRecord, error)
}
