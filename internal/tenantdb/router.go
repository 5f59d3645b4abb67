package tenantdb

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/metrics"
	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
)

// Pool is the surface the router needs from a connection pool
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Close()
}

// Conn is a leased database connection
type Conn interface {
	Release()
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DialFunc opens a pool for a tenant's database
type DialFunc func(ctx context.Context, info model.ConnectionInfo) (Pool, error)

// RouterConfig configures per-tenant pool management
type RouterConfig struct {
	AcquireTimeout time.Duration
	DialTimeout    time.Duration
	IdleTTL        time.Duration
	SweepInterval  time.Duration
	MaxConns       int32
	MinConns       int32
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 2 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 15 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 4
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	return c
}

// Router maintains one connection pool per tenant, opened lazily on
// first use and closed on revocation or idleness. Concurrent first
// uses of a tenant collapse into a single dial.
type Router struct {
	pools   map[string]*tenantPool
	revoked map[string]uint64
	mu      sync.Mutex
	dial    DialFunc
	group   singleflight.Group
	cfg     RouterConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

type tenantPool struct {
	tenantID string
	pool     Pool
	lastUse  atomic.Int64
}

func (tp *tenantPool) touch() {
	tp.lastUse.Store(time.Now().UnixNano())
}

func (tp *tenantPool) idleSince(cutoff time.Time) bool {
	return tp.lastUse.Load() < cutoff.UnixNano()
}

// NewRouter creates a connection router and starts its idle sweeper.
// A nil dial falls back to opening real pgx pools.
func NewRouter(dial DialFunc, cfg RouterConfig, m *metrics.Metrics, logger *zap.Logger) *Router {
	cfg = cfg.withDefaults()
	if dial == nil {
		dial = NewPgxDial(cfg)
	}

	r := &Router{
		pools:   make(map[string]*tenantPool),
		revoked: make(map[string]uint64),
		dial:    dial,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	go r.sweep()

	return r
}

// Lease is a borrowed tenant connection. Release returns it to the
// pool and is safe to call more than once.
type Lease struct {
	tenantID string
	conn     Conn
	once     sync.Once
}

// Conn returns the leased connection
func (l *Lease) Conn() Conn {
	return l.conn
}

// TenantID returns the tenant the connection belongs to
func (l *Lease) TenantID() string {
	return l.tenantID
}

// Release returns the connection to its pool
func (l *Lease) Release() {
	l.once.Do(l.conn.Release)
}

// Acquire leases a connection to the tenant's database. Acquisition is
// bounded by the configured timeout so a saturated tenant pool fails
// fast instead of queueing requests indefinitely.
func (r *Router) Acquire(ctx context.Context, tc *tenancy.Context) (*Lease, error) {
	if tc == nil {
		return nil, apperrors.Internal("nil tenant context", nil)
	}
	switch tc.State() {
	case model.StateActive:
	case model.StateSuspended:
		return nil, apperrors.TenantSuspended(tc.TenantID())
	default:
		return nil, apperrors.TenantNotFound(tc.TenantID())
	}

	tp, err := r.poolFor(ctx, tc)
	if err != nil {
		return nil, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, r.cfg.AcquireTimeout)
	defer cancel()

	start := time.Now()
	conn, err := tp.pool.Acquire(acquireCtx)
	r.metrics.RecordAcquire(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if acquireCtx.Err() != nil {
			// The per-acquire deadline fired, not the caller's: the
			// tenant's pool is saturated
			r.metrics.RecordAcquireTimeout()
			r.logger.Warn("tenant pool saturated",
				zap.String("tenant_id", tc.TenantID()),
				zap.Duration("timeout", r.cfg.AcquireTimeout))
			return nil, apperrors.Infrastructure("tenant connection pool saturated", err).
				WithDetail("tenant_id", tc.TenantID())
		}
		return nil, apperrors.Infrastructure("tenant connection acquire failed", err).
			WithDetail("tenant_id", tc.TenantID())
	}

	if ctx.Err() != nil {
		conn.Release()
		return nil, ctx.Err()
	}

	tp.touch()
	return &Lease{tenantID: tc.TenantID(), conn: conn}, nil
}

// poolFor returns the tenant's pool, dialing it on first use
func (r *Router) poolFor(ctx context.Context, tc *tenancy.Context) (*tenantPool, error) {
	tenantID := tc.TenantID()

	r.mu.Lock()
	if tp, ok := r.pools[tenantID]; ok {
		tp.touch()
		r.mu.Unlock()
		return tp, nil
	}
	r.mu.Unlock()

	ch := r.group.DoChan(tenantID, func() (interface{}, error) {
		return r.openPool(tenantID, tc.Connection())
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*tenantPool), nil
	}
}

// openPool dials the tenant database and publishes the pool, unless a
// revocation raced the dial
func (r *Router) openPool(tenantID string, info model.ConnectionInfo) (*tenantPool, error) {
	r.mu.Lock()
	if tp, ok := r.pools[tenantID]; ok {
		r.mu.Unlock()
		return tp, nil
	}
	gen := r.revoked[tenantID]
	r.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.Background(), r.cfg.DialTimeout)
	defer cancel()

	pool, err := r.dial(dialCtx, info)
	if err != nil {
		r.metrics.RecordPoolDial("error")
		return nil, apperrors.Infrastructure("tenant database unavailable", err).
			WithDetail("tenant_id", tenantID)
	}

	r.mu.Lock()
	if r.revoked[tenantID] != gen {
		r.mu.Unlock()
		// Nothing was leased from this pool yet, closing is immediate
		pool.Close()
		r.metrics.RecordPoolDial("revoked")
		return nil, apperrors.Infrastructure("tenant connections revoked", nil).
			WithDetail("tenant_id", tenantID)
	}
	tp := &tenantPool{tenantID: tenantID, pool: pool}
	tp.touch()
	r.pools[tenantID] = tp
	active := len(r.pools)
	r.mu.Unlock()

	r.metrics.RecordPoolDial("ok")
	r.metrics.SetPoolsActive(active)
	r.logger.Info("tenant pool opened",
		zap.String("tenant_id", tenantID),
		zap.String("database", info.Database))
	return tp, nil
}

// Revoke unpublishes the tenant's pool so no new lease can come from
// it, then drains it in the background. Leases already handed out keep
// working until released.
func (r *Router) Revoke(tenantID string) {
	r.mu.Lock()
	r.revoked[tenantID]++
	tp, ok := r.pools[tenantID]
	if ok {
		delete(r.pools, tenantID)
	}
	active := len(r.pools)
	r.mu.Unlock()

	if !ok {
		return
	}

	r.metrics.SetPoolsActive(active)
	r.metrics.RecordPoolEviction("revoked")
	r.logger.Info("tenant pool revoked", zap.String("tenant_id", tenantID))

	// Draining waits for borrowed connections and must not stall the
	// invalidation path
	go tp.pool.Close()
}

// ActivePools returns the number of open per-tenant pools
func (r *Router) ActivePools() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// Close stops the sweeper and closes every pool, waiting for borrowed
// connections to come back
func (r *Router) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})

	r.mu.Lock()
	pools := make([]*tenantPool, 0, len(r.pools))
	for tenantID, tp := range r.pools {
		delete(r.pools, tenantID)
		pools = append(pools, tp)
	}
	r.mu.Unlock()

	for _, tp := range pools {
		tp.pool.Close()
	}
	r.metrics.SetPoolsActive(0)
}

func (r *Router) sweep() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.cfg.IdleTTL)

			var idle []*tenantPool
			r.mu.Lock()
			for tenantID, tp := range r.pools {
				if tp.idleSince(cutoff) {
					delete(r.pools, tenantID)
					idle = append(idle, tp)
				}
			}
			active := len(r.pools)
			r.mu.Unlock()

			if len(idle) == 0 {
				continue
			}
			r.metrics.SetPoolsActive(active)
			for _, tp := range idle {
				r.metrics.RecordPoolEviction("idle")
				r.logger.Info("idle tenant pool closed", zap.String("tenant_id", tp.tenantID))
				go tp.pool.Close()
			}
		}
	}
}
