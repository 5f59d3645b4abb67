package tenancy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/metrics"
	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/store"
)

// DirectoryConfig configures caching and registry fetch behavior
type DirectoryConfig struct {
	CacheTTL     time.Duration
	CacheMaxSize int
	FetchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c DirectoryConfig) withDefaults() DirectoryConfig {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Minute
	}
	if c.CacheMaxSize <= 0 {
		c.CacheMaxSize = 10000
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	return c
}

// Directory resolves tenant identifiers to tenant records. Reads hit
// the in-process cache first, then the optional shared cache, then the
// registry; concurrent misses for one identifier collapse into a
// single registry fetch.
type Directory struct {
	store   store.TenantStore
	shared  store.RecordCache // optional second level, nil when disabled
	cache   *recordCache
	group   singleflight.Group
	cfg     DirectoryConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	// invGen detects invalidations racing an in-flight fetch so a
	// stale record is never published over fresh state
	invGen atomic.Uint64

	hookMu sync.Mutex
	hooks  []func(tenantID string)
}

// NewDirectory creates a tenant directory. The shared cache may be nil.
func NewDirectory(
	tenantStore store.TenantStore,
	shared store.RecordCache,
	cfg DirectoryConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Directory {
	cfg = cfg.withDefaults()
	return &Directory{
		store:   tenantStore,
		shared:  shared,
		cache:   newRecordCache(cfg.CacheMaxSize),
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Resolve maps an identifier to a routable tenant record. Suspended
// tenants surface explicitly; deleted, provisioning and unknown ones
// all resolve as not found. The returned record is the caller's copy.
func (d *Directory) Resolve(ctx context.Context, identifier string) (*model.Tenant, error) {
	record, err := d.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return gateRecord(identifier, record)
}

// Lookup returns the tenant record for an identifier or ID without the
// lifecycle gate. Admin surfaces use it to see tenants in any state.
func (d *Directory) Lookup(ctx context.Context, identifier string) (*model.Tenant, error) {
	return d.lookup(ctx, identifier)
}

func (d *Directory) lookup(ctx context.Context, identifier string) (*model.Tenant, error) {
	identifier = normalizeIdentifier(identifier)
	if identifier == "" {
		return nil, apperrors.New(apperrors.CodeTenantNotFound, "empty tenant identifier", nil)
	}

	if record, ok := d.cache.Get(identifier); ok {
		d.metrics.RecordCacheHit("l1")
		return record, nil
	}
	d.metrics.RecordCacheMiss("l1")

	if d.shared != nil {
		record, err := d.shared.Get(ctx, identifier)
		switch {
		case err == nil:
			d.metrics.RecordCacheHit("l2")
			d.cache.Set(identifier, record, d.cfg.CacheTTL)
			return record, nil
		case errors.Is(err, store.ErrNotFound):
			d.metrics.RecordCacheMiss("l2")
		default:
			d.logger.Warn("shared tenant cache unavailable",
				zap.String("identifier", identifier),
				zap.Error(err))
		}
	}

	// DoChan rather than Do: a caller that gives up stops waiting
	// without aborting the fetch other callers are parked on
	ch := d.group.DoChan(identifier, func() (interface{}, error) {
		return d.fetch(identifier)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			d.metrics.RecordSharedLookup()
		}
		// Collapsed callers all receive the one fetched record; clone
		// so each caller owns its copy
		return res.Val.(*model.Tenant).Clone(), nil
	}
}

// fetch loads a record from the registry with bounded retries. It runs
// on a detached context so the shared flight outlives any one caller.
func (d *Directory) fetch(identifier string) (*model.Tenant, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.FetchTimeout)
	defer cancel()

	gen := d.invGen.Load()

	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			d.metrics.RecordLookupRetry()
			backoff := d.cfg.RetryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, apperrors.Infrastructure("tenant lookup timed out", ctx.Err())
			case <-time.After(backoff):
			}
		}

		record, err := d.store.GetByIdentifier(ctx, identifier)
		if err == nil {
			d.publish(identifier, record, gen)
			return record, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			// Absence is terminal, not retryable
			return nil, apperrors.TenantNotFound(identifier)
		}
		lastErr = err
		d.logger.Warn("tenant registry fetch failed",
			zap.String("identifier", identifier),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, apperrors.Infrastructure("tenant registry unavailable", lastErr)
}

// publish caches a fetched record unless an invalidation raced the
// fetch, in which case the record may already be stale and is dropped
func (d *Directory) publish(identifier string, record *model.Tenant, gen uint64) {
	if d.invGen.Load() != gen {
		return
	}
	d.cache.Set(identifier, record, d.cfg.CacheTTL)

	if d.shared != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.shared.Set(ctx, identifier, record, d.cfg.CacheTTL); err != nil {
			d.logger.Warn("shared tenant cache update failed",
				zap.String("identifier", identifier),
				zap.Error(err))
		}
	}
}

// Invalidate synchronously drops every cached identifier for the
// tenant, then notifies registered hooks. The next Resolve observes
// registry state.
func (d *Directory) Invalidate(ctx context.Context, tenantID string) {
	d.invGen.Add(1)
	removed := d.cache.RemoveTenant(tenantID)

	if d.shared != nil {
		if err := d.shared.DeleteTenant(ctx, tenantID); err != nil {
			d.logger.Warn("shared tenant cache invalidation failed",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
		}
	}

	d.logger.Info("tenant invalidated",
		zap.String("tenant_id", tenantID),
		zap.Int("evicted", removed))

	for _, hook := range d.snapshotHooks() {
		hook(tenantID)
	}
}

// OnInvalidate registers a hook called after each invalidation, used
// to tear down per-tenant resources such as connection pools
func (d *Directory) OnInvalidate(hook func(tenantID string)) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	d.hooks = append(d.hooks, hook)
}

func (d *Directory) snapshotHooks() []func(string) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	out := make([]func(string), len(d.hooks))
	copy(out, d.hooks)
	return out
}

// CachedRecords returns the number of entries in the in-process cache
func (d *Directory) CachedRecords() int {
	return d.cache.Len()
}

// gateRecord applies lifecycle gating to a resolved record. Active
// passes, suspended surfaces explicitly, and everything else resolves
// as unknown so deleted tenants are indistinguishable from absent ones.
func gateRecord(identifier string, record *model.Tenant) (*model.Tenant, error) {
	switch record.State {
	case model.StateActive:
		return record, nil
	case model.StateSuspended:
		return nil, apperrors.TenantSuspended(record.ID)
	default:
		return nil, apperrors.TenantNotFound(identifier)
	}
}
