package store

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hamzazeryouh/RealEstate/internal/model"
)

// MemoryTenantStore implements TenantStore with an in-memory map.
// Used in dev mode and in tests.
type MemoryTenantStore struct {
	tenants map[string]*model.Tenant
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryTenantStore creates an empty in-memory tenant store
func NewMemoryTenantStore(logger *zap.Logger) *MemoryTenantStore {
	return &MemoryTenantStore{
		tenants: make(map[string]*model.Tenant),
		logger:  logger,
	}
}

// GetByIdentifier looks a tenant up by ID or any alias
func (s *MemoryTenantStore) GetByIdentifier(ctx context.Context, identifier string) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if t.HasIdentifier(identifier) {
			return t.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// GetByID retrieves a tenant by ID
func (s *MemoryTenantStore) GetByID(ctx context.Context, tenantID string) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tenants[tenantID]
	if !exists {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

// Create stores a new tenant
func (s *MemoryTenantStore) Create(ctx context.Context, tenant *model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.ID]; exists {
		return ErrAlreadyExists
	}
	s.tenants[tenant.ID] = tenant.Clone()
	return nil
}

// Update replaces a tenant, enforcing optimistic locking
func (s *MemoryTenantStore) Update(ctx context.Context, tenant *model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.tenants[tenant.ID]
	if !exists {
		return ErrNotFound
	}
	if current.Version != tenant.Version-1 {
		return ErrVersionConflict
	}
	s.tenants[tenant.ID] = tenant.Clone()
	return nil
}

// Delete removes a tenant
func (s *MemoryTenantStore) Delete(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenantID]; !exists {
		return ErrNotFound
	}
	delete(s.tenants, tenantID)
	return nil
}

// List returns all tenants ordered by ID
func (s *MemoryTenantStore) List(ctx context.Context) ([]*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryTenantStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *MemoryTenantStore) Close() {}
