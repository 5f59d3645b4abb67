package store

import (
	"context"
	"errors"
	"time"

	"github.com/hamzazeryouh/RealEstate/internal/model"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating a record whose ID is taken
var ErrAlreadyExists = errors.New("already exists")

// ErrVersionConflict is returned when an optimistic-lock update loses
var ErrVersionConflict = errors.New("version conflict")

// TenantStore is the registry of tenants and their routing configuration
type TenantStore interface {
	// GetByIdentifier looks a tenant up by any of its external identifiers
	// (subdomain, custom domain, alias) or by its ID.
	GetByIdentifier(ctx context.Context, identifier string) (*model.Tenant, error)
	GetByID(ctx context.Context, tenantID string) (*model.Tenant, error)
	Create(ctx context.Context, tenant *model.Tenant) error
	// Update applies optimistic locking: tenant.Version must already be
	// incremented and the stored row must still hold Version-1.
	Update(ctx context.Context, tenant *model.Tenant) error
	Delete(ctx context.Context, tenantID string) error
	List(ctx context.Context) ([]*model.Tenant, error)

	// Health check
	Ping(ctx context.Context) error
	Close()
}

// Predicate is a set of equality filters applied to entity queries.
// The keys "tenant_id" and "id" address record fields; all other keys
// address values inside the record document.
type Predicate map[string]interface{}

// Clone returns a shallow copy of the predicate
func (p Predicate) Clone() Predicate {
	out := make(Predicate, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// EntityStore persists tenant-owned entity records. Implementations do
// not enforce ownership themselves beyond honoring the tenant_id
// predicate; callers go through the scope enforcer.
type EntityStore interface {
	Query(ctx context.Context, entityType string, pred Predicate) ([]*model.EntityRecord, error)
	Load(ctx context.Context, entityType, id string) (*model.EntityRecord, error)
	Persist(ctx context.Context, rec *model.EntityRecord) error
	Delete(ctx context.Context, entityType, id string) error
}

// RecordCache is a shared second-level cache of resolved tenant records,
// keyed by identifier. Get returns ErrNotFound on a miss.
type RecordCache interface {
	Get(ctx context.Context, identifier string) (*model.Tenant, error)
	Set(ctx context.Context, identifier string, tenant *model.Tenant, ttl time.Duration) error
	// DeleteTenant removes every cached identifier belonging to the tenant
	DeleteTenant(ctx context.Context, tenantID string) error
	Ping(ctx context.Context) error
	Close() error
}
