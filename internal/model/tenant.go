package model

import (
	"strings"
	"time"
)

// TenantState represents a tenant's lifecycle state
type TenantState string

const (
	StateProvisioning TenantState = "provisioning"
	StateActive       TenantState = "active"
	StateSuspended    TenantState = "suspended"
	StateDeleted      TenantState = "deleted"
)

// Valid reports whether the state is a known lifecycle state
func (s TenantState) Valid() bool {
	switch s {
	case StateProvisioning, StateActive, StateSuspended, StateDeleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// Deleted is terminal.
func (s TenantState) CanTransitionTo(next TenantState) bool {
	switch s {
	case StateProvisioning:
		return next == StateActive || next == StateDeleted
	case StateActive:
		return next == StateSuspended || next == StateDeleted
	case StateSuspended:
		return next == StateActive || next == StateDeleted
	default:
		return false
	}
}

// ConnectionInfo holds the connection parameters for a tenant's database
type ConnectionInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
	MaxConns int32  `json:"max_conns,omitempty"`
	MinConns int32  `json:"min_conns,omitempty"`
}

// Tenant represents a registered tenant and its routing configuration.
// Identifiers carries every external name the tenant resolves under
// (subdomain, custom domains, API aliases); the ID itself also resolves.
type Tenant struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Identifiers []string          `json:"identifiers"`
	Connection  ConnectionInfo    `json:"connection"`
	Settings    map[string]string `json:"settings,omitempty"`
	State       TenantState       `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int64             `json:"version"` // For optimistic locking
}

// IsActive reports whether the tenant may serve traffic
func (t *Tenant) IsActive() bool {
	return t.State == StateActive
}

// HasIdentifier reports whether identifier names this tenant.
// Matching is case-insensitive; the tenant ID always matches.
func (t *Tenant) HasIdentifier(identifier string) bool {
	if strings.EqualFold(t.ID, identifier) {
		return true
	}
	for _, id := range t.Identifiers {
		if strings.EqualFold(id, identifier) {
			return true
		}
	}
	return false
}

// Setting returns a tenant setting by key
func (t *Tenant) Setting(key string) (string, bool) {
	v, ok := t.Settings[key]
	return v, ok
}

// Clone returns a deep copy of the tenant
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	if t.Identifiers != nil {
		c.Identifiers = make([]string, len(t.Identifiers))
		copy(c.Identifiers, t.Identifiers)
	}
	if t.Settings != nil {
		c.Settings = make(map[string]string, len(t.Settings))
		for k, v := range t.Settings {
			c.Settings[k] = v
		}
	}
	return &c
}
