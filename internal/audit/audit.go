package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Denial reasons recorded on scope and resolution rejections
const (
	ReasonCrossTenantAccess = "cross_tenant_access"
	ReasonCrossTenantQuery  = "cross_tenant_query"
	ReasonTenantMismatch    = "tenant_mismatch"
	ReasonTenantSuspended   = "tenant_suspended"
)

// Event describes a denied tenant-scoped access
type Event struct {
	Time       time.Time
	TenantID   string
	Operation  string
	EntityType string
	EntityID   string
	Reason     string
}

// Recorder receives denial events. Implementations must not block the
// request path.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// ZapRecorder logs denial events through a structured logger
type ZapRecorder struct {
	logger *zap.Logger
}

// NewZapRecorder creates a recorder backed by the given logger
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	return &ZapRecorder{logger: logger}
}

// Record logs the denial
func (r *ZapRecorder) Record(ctx context.Context, ev Event) {
	r.logger.Warn("tenant access denied",
		zap.String("tenant_id", ev.TenantID),
		zap.String("operation", ev.Operation),
		zap.String("entity_type", ev.EntityType),
		zap.String("entity_id", ev.EntityID),
		zap.String("reason", ev.Reason),
		zap.Time("denied_at", ev.Time),
	)
}

// MemoryRecorder collects denial events in memory, for tests
type MemoryRecorder struct {
	events []Event
	mu     sync.Mutex
}

// NewMemoryRecorder creates an empty in-memory recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends the event
func (r *MemoryRecorder) Record(ctx context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
