package scope

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hamzazeryouh/RealEstate/internal/audit"
	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/metrics"
	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/store"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
)

// Enforcer is the single path between business code and entity storage.
// Every operation derives its tenant from the request context, stamps
// or verifies ownership, and masks cross-tenant records as absent so
// existence never leaks across tenants.
type Enforcer struct {
	store   store.EntityStore
	auditor audit.Recorder
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewEnforcer creates a scope enforcer. The auditor must not be nil;
// denied accesses are always recorded.
func NewEnforcer(entityStore store.EntityStore, auditor audit.Recorder, m *metrics.Metrics, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		store:   entityStore,
		auditor: auditor,
		metrics: m,
		logger:  logger,
	}
}

// WithTenantScope gates op on the tenant's lifecycle state and runs it
// with the tenant attached to the context. Business code routes all
// persistence through this, whether or not a request is involved.
func (e *Enforcer) WithTenantScope(ctx context.Context, tc *tenancy.Context, op func(context.Context) error) error {
	if tc == nil {
		return apperrors.Internal("nil tenant context", nil)
	}

	switch tc.State() {
	case model.StateActive:
	case model.StateSuspended:
		e.deny(ctx, tc.TenantID(), "scope", "", "", audit.ReasonTenantSuspended)
		return apperrors.TenantSuspended(tc.TenantID())
	default:
		return apperrors.TenantNotFound(tc.TenantID())
	}

	return op(tenancy.WithContext(ctx, tc))
}

// Query runs an entity query constrained to the calling tenant. A
// caller-supplied tenant_id predicate naming another tenant is
// overridden, and the attempt is recorded.
func (e *Enforcer) Query(ctx context.Context, entityType string, pred store.Predicate) ([]*model.EntityRecord, error) {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	scoped := store.Predicate{}
	if pred != nil {
		scoped = pred.Clone()
	}
	if requested, ok := scoped["tenant_id"]; ok && requested != tc.TenantID() {
		e.deny(ctx, tc.TenantID(), "query", entityType, "", audit.ReasonCrossTenantQuery)
	}
	scoped["tenant_id"] = tc.TenantID()

	records, err := e.store.Query(ctx, entityType, scoped)
	if err != nil {
		return nil, apperrors.Infrastructure("entity query failed", err)
	}
	e.metrics.RecordScopeCheck("query", "allowed")
	return records, nil
}

// Load retrieves a single record. Records owned by another tenant are
// indistinguishable from absent ones.
func (e *Enforcer) Load(ctx context.Context, entityType, id string) (*model.EntityRecord, error) {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	record, err := e.store.Load(ctx, entityType, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.EntityNotFound(entityType, id)
		}
		return nil, apperrors.Infrastructure("entity load failed", err)
	}
	if record.TenantID != tc.TenantID() {
		e.deny(ctx, tc.TenantID(), "load", entityType, id, audit.ReasonCrossTenantAccess)
		return nil, apperrors.EntityNotFound(entityType, id)
	}

	e.metrics.RecordScopeCheck("load", "allowed")
	return record, nil
}

// Persist writes a record, stamping the calling tenant's ownership. A
// record already tagged for another tenant is rejected outright.
func (e *Enforcer) Persist(ctx context.Context, rec *model.EntityRecord) error {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return err
	}
	if rec == nil || rec.Type == "" || rec.ID == "" {
		return apperrors.InvalidArgument("entity record requires type and id", nil)
	}

	switch rec.TenantID {
	case "":
		rec.TenantID = tc.TenantID()
	case tc.TenantID():
	default:
		e.deny(ctx, tc.TenantID(), "persist", rec.Type, rec.ID, audit.ReasonTenantMismatch)
		return apperrors.TenantMismatch("persist", rec.Type)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if err := e.store.Persist(ctx, rec); err != nil {
		return apperrors.Infrastructure("entity persist failed", err)
	}
	e.metrics.RecordScopeCheck("persist", "allowed")
	return nil
}

// Mutate loads a record, applies fn to a copy, and writes the result.
// Ownership and identity are pinned: fn may change the document but
// never the tenant tag, type or ID.
func (e *Enforcer) Mutate(ctx context.Context, entityType, id string, fn func(*model.EntityRecord) error) (*model.EntityRecord, error) {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	current, err := e.store.Load(ctx, entityType, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.EntityNotFound(entityType, id)
		}
		return nil, apperrors.Infrastructure("entity load failed", err)
	}
	if current.TenantID != tc.TenantID() {
		e.deny(ctx, tc.TenantID(), "mutate", entityType, id, audit.ReasonCrossTenantAccess)
		return nil, apperrors.EntityNotFound(entityType, id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if next.TenantID != current.TenantID {
		e.deny(ctx, tc.TenantID(), "mutate", entityType, id, audit.ReasonTenantMismatch)
		return nil, apperrors.TenantMismatch("mutate", entityType)
	}
	if next.Type != current.Type || next.ID != current.ID {
		return nil, apperrors.InvalidArgument("entity identity is immutable", nil)
	}
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()

	if err := e.store.Persist(ctx, next); err != nil {
		return nil, apperrors.Infrastructure("entity persist failed", err)
	}
	e.metrics.RecordScopeCheck("mutate", "allowed")
	return next, nil
}

// Delete removes a record after verifying ownership, with the same
// masking as Load
func (e *Enforcer) Delete(ctx context.Context, entityType, id string) error {
	tc, err := tenancy.FromContext(ctx)
	if err != nil {
		return err
	}

	current, err := e.store.Load(ctx, entityType, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.EntityNotFound(entityType, id)
		}
		return apperrors.Infrastructure("entity load failed", err)
	}
	if current.TenantID != tc.TenantID() {
		e.deny(ctx, tc.TenantID(), "delete", entityType, id, audit.ReasonCrossTenantAccess)
		return apperrors.EntityNotFound(entityType, id)
	}

	if err := e.store.Delete(ctx, entityType, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.EntityNotFound(entityType, id)
		}
		return apperrors.Infrastructure("entity delete failed", err)
	}
	e.metrics.RecordScopeCheck("delete", "allowed")
	return nil
}

func (e *Enforcer) deny(ctx context.Context, tenantID, operation, entityType, entityID, reason string) {
	e.metrics.RecordScopeCheck(operation, "denied")
	e.metrics.RecordScopeDenial(reason)
	e.auditor.Record(ctx, audit.Event{
		Time:       time.Now(),
		TenantID:   tenantID,
		Operation:  operation,
		EntityType: entityType,
		EntityID:   entityID,
		Reason:     reason,
	})
}
