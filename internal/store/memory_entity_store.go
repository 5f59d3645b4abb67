package store

import (
	"context"
	"sort"
	"sync"

	"github.com/hamzazeryouh/RealEstate/internal/model"
)

// MemoryEntityStore implements EntityStore with an in-memory map.
// Unlike the per-tenant database store, all tenants share one map here,
// so the tenant_id predicate is the only thing separating them. That
// makes it the store of choice for isolation tests.
type MemoryEntityStore struct {
	records map[entityKey]*model.EntityRecord
	mu      sync.RWMutex
}

type entityKey struct {
	entityType string
	id         string
}

// NewMemoryEntityStore creates an empty in-memory entity store
func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{
		records: make(map[entityKey]*model.EntityRecord),
	}
}

// Query returns all records of the given type matching the predicate
func (s *MemoryEntityStore) Query(ctx context.Context, entityType string, pred Predicate) ([]*model.EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.EntityRecord, 0)
	for key, rec := range s.records {
		if key.entityType != entityType {
			continue
		}
		if matches(rec, pred) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Load retrieves a single record by type and ID
func (s *MemoryEntityStore) Load(ctx context.Context, entityType, id string) (*model.EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[entityKey{entityType, id}]
	if !exists {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Persist inserts or replaces a record
func (s *MemoryEntityStore) Persist(ctx context.Context, rec *model.EntityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[entityKey{rec.Type, rec.ID}] = rec.Clone()
	return nil
}

// Delete removes a record
func (s *MemoryEntityStore) Delete(ctx context.Context, entityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entityKey{entityType, id}
	if _, exists := s.records[key]; !exists {
		return ErrNotFound
	}
	delete(s.records, key)
	return nil
}

// Len returns the number of stored records
func (s *MemoryEntityStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matches(rec *model.EntityRecord, pred Predicate) bool {
	for key, want := range pred {
		var got interface{}
		switch key {
		case "tenant_id":
			got = rec.TenantID
		case "id":
			got = rec.ID
		default:
			got = rec.Doc[key]
		}
		if !equalValue(got, want) {
			return false
		}
	}
	return true
}

// equalValue compares predicate values loosely across numeric types,
// since documents that crossed a JSON boundary carry float64 numbers
func equalValue(got, want interface{}) bool {
	if got == want {
		return true
	}
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	return gok && wok && gf == wf
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
