// Package memstore is the in-process implementation of the record store
// port. It maintains a primary record table plus four secondary indexes
// (owner, owner+domain, owner+tag, owner+day) and keeps them atomic under a
// single mutex. A durable adapter replacing this one must wrap the same
// membership updates in a transaction.
package memstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RecordStore = (*RecordStore)(nil)

// defaultLimit caps query results when the caller does not set a limit.
const defaultLimit = 100

type idSet map[string]struct{}

// RecordStore is the in-memory multi-index record store.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]model.NormalizedRecord

	byOwner  map[string]idSet
	byDomain map[string]idSet // ownerID|domain
	byTag    map[string]idSet // ownerID|tag
	byDay    map[string]idSet // ownerID|YYYY-MM-DD
}

// NewRecordStore creates an empty record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records:  make(map[string]model.NormalizedRecord),
		byOwner:  make(map[string]idSet),
		byDomain: make(map[string]idSet),
		byTag:    make(map[string]idSet),
		byDay:    make(map[string]idSet),
	}
}

// Store persists a new record and registers it in all four indexes.
func (s *RecordStore) Store(record model.NormalizedRecord) error {
	if record.ID == "" || record.OwnerID == "" {
		return fmt.Errorf("store record: id and owner id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("store record %s: already exists", record.ID)
	}

	s.records[record.ID] = record
	s.index(record)
	return nil
}

// Get returns the record by id scoped to the owner.
func (s *RecordStore) Get(ownerID, recordID string) (*model.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordID]
	if !ok || record.OwnerID != ownerID {
		return nil, driven.ErrNotFound
	}
	out := record
	return &out, nil
}

// Update replaces an existing record. Index membership is removed for the
// old version and reinserted for the new one, so tags the record no longer
// carries cannot keep returning it.
func (s *RecordStore) Update(record model.NormalizedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.records[record.ID]
	if !ok || old.OwnerID != record.OwnerID {
		return driven.ErrNotFound
	}

	s.unindex(old)
	s.records[record.ID] = record
	s.index(record)
	return nil
}

// Delete removes the record and every index membership it held.
func (s *RecordStore) Delete(ownerID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordID]
	if !ok || record.OwnerID != ownerID {
		return driven.ErrNotFound
	}

	s.unindex(record)
	delete(s.records, recordID)
	return nil
}

// DeleteForConnection removes every record sourced from the given
// connection and returns how many were removed.
func (s *RecordStore) DeleteForConnection(ownerID, connectionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for id := range s.byOwner[ownerID] {
		record := s.records[id]
		if record.Source.ID != connectionID {
			continue
		}
		s.unindex(record)
		delete(s.records, id)
		removed++
	}
	return removed, nil
}

// Query answers a filtered, paginated query: the owner's full id set is
// intersected with the domain index and with every requested tag's index
// (AND semantics), filtered by date range, sorted by timestamp descending,
// then paginated.
func (s *RecordStore) Query(ownerID string, opts driven.QueryOptions) ([]model.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := s.byOwner[ownerID]
	if opts.Domain != "" {
		candidates = intersect(candidates, s.byDomain[key(ownerID, string(opts.Domain))])
	}
	for _, tag := range opts.Tags {
		candidates = intersect(candidates, s.byTag[key(ownerID, tag)])
	}
	if days, ok := s.dayRange(ownerID, opts.From, opts.To); ok {
		candidates = intersect(candidates, days)
	}

	matched := make([]model.NormalizedRecord, 0, len(candidates))
	for id := range candidates {
		record := s.records[id]
		if !opts.From.IsZero() && record.Timestamp.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && record.Timestamp.After(opts.To) {
			continue
		}
		matched = append(matched, record)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	return paginate(matched, opts.Limit, opts.Offset), nil
}

// Stats returns aggregate counts over the owner's records.
func (s *RecordStore) Stats(ownerID string) (driven.DataStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := driven.DataStats{
		ByDomain:  make(map[model.ConnectionCategory]int),
		TagCounts: make(map[string]int),
	}

	for id := range s.byOwner[ownerID] {
		record := s.records[id]
		stats.Total++
		stats.ByDomain[record.Domain]++
		for _, tag := range record.Tags {
			stats.TagCounts[tag]++
		}
		if stats.Oldest.IsZero() || record.Timestamp.Before(stats.Oldest) {
			stats.Oldest = record.Timestamp
		}
		if record.Timestamp.After(stats.Newest) {
			stats.Newest = record.Timestamp
		}
	}

	return stats, nil
}

// Search performs a case-insensitive substring match over tags and a JSON
// serialization of each payload. Results are timestamp-descending.
func (s *RecordStore) Search(ownerID, query string, limit int) ([]model.NormalizedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var matched []model.NormalizedRecord

	for id := range s.byOwner[ownerID] {
		record := s.records[id]
		if recordMatches(record, needle) {
			matched = append(matched, record)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	return paginate(matched, limit, 0), nil
}

func recordMatches(record model.NormalizedRecord, needle string) bool {
	for _, tag := range record.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	serialized, err := json.Marshal(record.Payload)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(serialized)), needle)
}

// index registers the record in all four secondary indexes. Callers hold
// the write lock.
func (s *RecordStore) index(record model.NormalizedRecord) {
	addTo(s.byOwner, record.OwnerID, record.ID)
	addTo(s.byDomain, key(record.OwnerID, string(record.Domain)), record.ID)
	for _, tag := range record.Tags {
		addTo(s.byTag, key(record.OwnerID, tag), record.ID)
	}
	addTo(s.byDay, key(record.OwnerID, record.DayKey()), record.ID)
}

// unindex removes the record from all four secondary indexes. Callers hold
// the write lock.
func (s *RecordStore) unindex(record model.NormalizedRecord) {
	removeFrom(s.byOwner, record.OwnerID, record.ID)
	removeFrom(s.byDomain, key(record.OwnerID, string(record.Domain)), record.ID)
	for _, tag := range record.Tags {
		removeFrom(s.byTag, key(record.OwnerID, tag), record.ID)
	}
	removeFrom(s.byDay, key(record.OwnerID, record.DayKey()), record.ID)
}

// maxIndexedDays bounds the day-index walk; wider ranges fall back to the
// per-record timestamp filter alone.
const maxIndexedDays = 366

// dayRange unions the day-index buckets covering [from, to] so bounded
// queries only touch records from matching days. The per-record timestamp
// filter still applies afterwards for sub-day precision. Callers hold the
// read lock.
func (s *RecordStore) dayRange(ownerID string, from, to time.Time) (idSet, bool) {
	if from.IsZero() || to.IsZero() {
		return nil, false
	}
	start := from.UTC().Truncate(24 * time.Hour)
	end := to.UTC().Truncate(24 * time.Hour)
	if end.Before(start) || end.Sub(start) >= maxIndexedDays*24*time.Hour {
		return nil, false
	}

	out := make(idSet)
	for day := start; !day.After(end); day = day.Add(24 * time.Hour) {
		for id := range s.byDay[key(ownerID, day.Format("2006-01-02"))] {
			out[id] = struct{}{}
		}
	}
	return out, true
}

func key(ownerID, component string) string {
	return ownerID + "|" + component
}

func addTo(index map[string]idSet, k, id string) {
	set, ok := index[k]
	if !ok {
		set = make(idSet)
		index[k] = set
	}
	set[id] = struct{}{}
}

func removeFrom(index map[string]idSet, k, id string) {
	set, ok := index[k]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, k)
	}
}

func intersect(a, b idSet) idSet {
	if len(a) > len(b) {
		a, b = b, a
	}
	out := make(idSet, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func paginate(records []model.NormalizedRecord, limit, offset int) []model.NormalizedRecord {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []model.NormalizedRecord{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}
