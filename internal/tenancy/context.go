package tenancy

import (
	"context"
	"time"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/model"
)

// Context is the immutable tenant identity attached to a request once
// resolution succeeds. It holds its own copy of the tenant record, so
// later directory refreshes never change an in-flight request's view.
type Context struct {
	record     model.Tenant
	strategy   Strategy
	resolvedAt time.Time
}

// NewContext builds a tenant context from a resolved record
func NewContext(record *model.Tenant, strategy Strategy, resolvedAt time.Time) *Context {
	return &Context{
		record:     *record.Clone(),
		strategy:   strategy,
		resolvedAt: resolvedAt,
	}
}

// TenantID returns the resolved tenant's ID
func (c *Context) TenantID() string {
	return c.record.ID
}

// State returns the tenant's lifecycle state at resolution time
func (c *Context) State() model.TenantState {
	return c.record.State
}

// Record returns a copy of the resolved tenant record
func (c *Context) Record() *model.Tenant {
	return c.record.Clone()
}

// Connection returns the tenant's database connection parameters
func (c *Context) Connection() model.ConnectionInfo {
	return c.record.Connection
}

// Setting returns a tenant setting by key
func (c *Context) Setting(key string) (string, bool) {
	return c.record.Setting(key)
}

// Strategy returns the strategy that resolved the tenant
func (c *Context) Strategy() Strategy {
	return c.strategy
}

// ResolvedAt returns when resolution happened
func (c *Context) ResolvedAt() time.Time {
	return c.resolvedAt
}

type contextKey struct{}

type claimsKey struct{}

// WithContext attaches the tenant context to ctx
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext retrieves the tenant context from ctx. Data access layers
// call this and fail closed when no tenant was resolved.
func FromContext(ctx context.Context) (*Context, error) {
	tc, ok := ctx.Value(contextKey{}).(*Context)
	if !ok || tc == nil {
		return nil, apperrors.Internal("no tenant in context", nil)
	}
	return tc, nil
}

// WithClaims attaches verified token claims to ctx. The authentication
// layer populates these before tenant resolution runs.
func WithClaims(ctx context.Context, claims map[string]string) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext retrieves verified token claims, or nil
func ClaimsFromContext(ctx context.Context) map[string]string {
	claims, _ := ctx.Value(claimsKey{}).(map[string]string)
	return claims
}
