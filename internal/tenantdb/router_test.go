package tenantdb

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
)

type fakePool struct {
	acquires atomic.Int32
	releases atomic.Int32
	closed   atomic.Bool
	blockCh  chan struct{}
}

func (p *fakePool) Acquire(ctx context.Context) (Conn, error) {
	if p.blockCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.blockCh:
		}
	}
	p.acquires.Add(1)
	return &fakeConn{pool: p}, nil
}

func (p *fakePool) Close() {
	p.closed.Store(true)
}

type fakeConn struct {
	pool *fakePool
}

func (c *fakeConn) Release() {
	c.pool.releases.Add(1)
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

// fakeDialer hands out fakePools and records every dial
type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	pools   []*fakePool
	err     error
	dialing chan struct{}
	gate    chan struct{}
}

func (d *fakeDialer) dial(ctx context.Context, info model.ConnectionInfo) (Pool, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	if d.dialing != nil {
		d.dialing <- struct{}{}
	}
	if d.gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-d.gate:
		}
	}
	if d.err != nil {
		return nil, d.err
	}

	pool := &fakePool{}
	d.mu.Lock()
	d.pools = append(d.pools, pool)
	d.mu.Unlock()
	return pool, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) pool(i int) *fakePool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pools[i]
}

func testRouterConfig() RouterConfig {
	return RouterConfig{
		AcquireTimeout: 100 * time.Millisecond,
		DialTimeout:    time.Second,
		IdleTTL:        time.Hour,
		SweepInterval:  time.Hour,
	}
}

func activeContext(tenantID string) *tenancy.Context {
	return stateContext(tenantID, model.StateActive)
}

func stateContext(tenantID string, state model.TenantState) *tenancy.Context {
	tenant := &model.Tenant{
		ID:    tenantID,
		State: state,
		Connection: model.ConnectionInfo{
			Host:     "db." + tenantID + ".internal",
			Port:     5432,
			Database: tenantID,
			User:     "app",
		},
	}
	return tenancy.NewContext(tenant, tenancy.StrategySubdomain, time.Now())
}

func TestRouterAcquireDialsOnFirstUse(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	lease, err := router.Acquire(context.Background(), activeContext("acme"))
	require.NoError(t, err)
	defer lease.Release()

	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, "acme", lease.TenantID())
	assert.Equal(t, 1, router.ActivePools())
}

func TestRouterAcquireReusesPool(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	tc := activeContext("acme")
	for i := 0; i < 5; i++ {
		lease, err := router.Acquire(context.Background(), tc)
		require.NoError(t, err)
		lease.Release()
	}

	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, int32(5), dialer.pool(0).acquires.Load())
	assert.Equal(t, int32(5), dialer.pool(0).releases.Load())
}

func TestRouterConcurrentFirstUseDialsOnce(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	tc := activeContext("acme")
	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lease, err := router.Acquire(context.Background(), tc)
			errs[i] = err
			if err == nil {
				lease.Release()
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dialer.dialCount())
}

func TestRouterSeparateTenantsGetSeparatePools(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	leaseA, err := router.Acquire(context.Background(), activeContext("acme"))
	require.NoError(t, err)
	defer leaseA.Release()

	leaseB, err := router.Acquire(context.Background(), activeContext("globex"))
	require.NoError(t, err)
	defer leaseB.Release()

	assert.Equal(t, 2, dialer.dialCount())
	assert.Equal(t, 2, router.ActivePools())
}

func TestRouterRefusesNonActiveTenants(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	_, err := router.Acquire(context.Background(), stateContext("acme", model.StateSuspended))
	assert.Equal(t, apperrors.CodeTenantSuspended, apperrors.GetCode(err))

	_, err = router.Acquire(context.Background(), stateContext("acme", model.StateProvisioning))
	assert.Equal(t, apperrors.CodeTenantNotFound, apperrors.GetCode(err))

	_, err = router.Acquire(context.Background(), stateContext("acme", model.StateDeleted))
	assert.Equal(t, apperrors.CodeTenantNotFound, apperrors.GetCode(err))

	assert.Equal(t, 0, dialer.dialCount())
}

func TestRouterAcquireTimesOutWhenPoolSaturated(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	tc := activeContext("acme")
	lease, err := router.Acquire(context.Background(), tc)
	require.NoError(t, err)
	defer lease.Release()

	// Simulate a pool with nothing left to hand out
	dialer.pool(0).blockCh = make(chan struct{})

	start := time.Now()
	_, err = router.Acquire(context.Background(), tc)
	elapsed := time.Since(start)

	assert.Equal(t, apperrors.CodeInfrastructure, apperrors.GetCode(err))
	assert.Less(t, elapsed, time.Second)
}

func TestRouterAcquireHonorsCallerCancellation(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	tc := activeContext("acme")
	lease, err := router.Acquire(context.Background(), tc)
	require.NoError(t, err)
	defer lease.Release()

	dialer.pool(0).blockCh = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = router.Acquire(ctx, tc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouterRevokeClosesPool(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	tc := activeContext("acme")
	lease, err := router.Acquire(context.Background(), tc)
	require.NoError(t, err)
	lease.Release()

	router.Revoke("acme")

	assert.Equal(t, 0, router.ActivePools())
	require.Eventually(t, func() bool {
		return dialer.pool(0).closed.Load()
	}, time.Second, 5*time.Millisecond)

	// Next use dials a fresh pool
	lease, err = router.Acquire(context.Background(), tc)
	require.NoError(t, err)
	lease.Release()
	assert.Equal(t, 2, dialer.dialCount())
}

func TestRouterRevokeUnknownTenantIsNoop(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	router.Revoke("nobody")
	assert.Equal(t, 0, router.ActivePools())
}

func TestRouterRevokeDuringDialDiscardsPool(t *testing.T) {
	dialer := &fakeDialer{
		dialing: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := router.Acquire(context.Background(), activeContext("acme"))
		errCh <- err
	}()

	// Wait for the dial to start, revoke mid-flight, then let it finish
	<-dialer.dialing
	router.Revoke("acme")
	close(dialer.gate)

	err := <-errCh
	assert.Equal(t, apperrors.CodeInfrastructure, apperrors.GetCode(err))
	assert.Equal(t, 0, router.ActivePools())
	assert.True(t, dialer.pool(0).closed.Load())
}

func TestRouterDialFailureIsNotCached(t *testing.T) {
	dialer := &fakeDialer{err: assert.AnError}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	tc := activeContext("acme")
	_, err := router.Acquire(context.Background(), tc)
	assert.Equal(t, apperrors.CodeInfrastructure, apperrors.GetCode(err))

	// The database comes back; the next request dials again
	dialer.err = nil
	lease, err := router.Acquire(context.Background(), tc)
	require.NoError(t, err)
	lease.Release()
	assert.Equal(t, 2, dialer.dialCount())
}

func TestRouterIdleSweepClosesPool(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := testRouterConfig()
	cfg.IdleTTL = 20 * time.Millisecond
	cfg.SweepInterval = 10 * time.Millisecond
	router := NewRouter(dialer.dial, cfg, nil, zap.NewNop())
	defer router.Close()

	lease, err := router.Acquire(context.Background(), activeContext("acme"))
	require.NoError(t, err)
	lease.Release()

	require.Eventually(t, func() bool {
		return router.ActivePools() == 0 && dialer.pool(0).closed.Load()
	}, time.Second, 5*time.Millisecond)
}

func TestRouterCloseClosesEverything(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())

	leaseA, err := router.Acquire(context.Background(), activeContext("acme"))
	require.NoError(t, err)
	leaseA.Release()
	leaseB, err := router.Acquire(context.Background(), activeContext("globex"))
	require.NoError(t, err)
	leaseB.Release()

	router.Close()

	assert.Equal(t, 0, router.ActivePools())
	assert.True(t, dialer.pool(0).closed.Load())
	assert.True(t, dialer.pool(1).closed.Load())
}

func TestLeaseReleaseIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	router := NewRouter(dialer.dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	lease, err := router.Acquire(context.Background(), activeContext("acme"))
	require.NoError(t, err)

	lease.Release()
	lease.Release()
	lease.Release()

	assert.Equal(t, int32(1), dialer.pool(0).releases.Load())
}

func TestRouterNilTenantContext(t *testing.T) {
	router := NewRouter((&fakeDialer{}).dial, testRouterConfig(), nil, zap.NewNop())
	defer router.Close()

	_, err := router.Acquire(context.Background(), nil)
	assert.Equal(t, apperrors.CodeInternal, apperrors.GetCode(err))
}
