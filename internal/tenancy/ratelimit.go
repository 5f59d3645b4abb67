package tenancy

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/metrics"
)

// SettingRateLimitRPS is the tenant setting overriding the default
// request rate
const SettingRateLimitRPS = "rate_limit_rps"

// RateLimiterConfig configures per-tenant request limiting
type RateLimiterConfig struct {
	RPS           float64
	Burst         int
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

func (c RateLimiterConfig) withDefaults() RateLimiterConfig {
	if c.RPS <= 0 {
		c.RPS = 50
	}
	if c.Burst <= 0 {
		c.Burst = 100
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	return c
}

// RateLimiter applies a token bucket per tenant so one tenant's burst
// cannot starve the others. Buckets for tenants that go quiet are
// swept periodically.
type RateLimiter struct {
	limiters map[string]*tenantLimiter
	mu       sync.Mutex
	cfg      RateLimiterConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a per-tenant rate limiter and starts its
// sweep loop
func NewRateLimiter(cfg RateLimiterConfig, m *metrics.Metrics, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*tenantLimiter),
		cfg:      cfg.withDefaults(),
		metrics:  m,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	go rl.sweep()

	return rl
}

// Allow reports whether the tenant may proceed
func (rl *RateLimiter) Allow(tc *Context) bool {
	rl.mu.Lock()
	tl, exists := rl.limiters[tc.TenantID()]
	if !exists {
		tl = &tenantLimiter{limiter: rate.NewLimiter(rl.limitFor(tc), rl.cfg.Burst)}
		rl.limiters[tc.TenantID()] = tl
	}
	tl.lastSeen = time.Now()
	rl.mu.Unlock()

	return tl.limiter.Allow()
}

// limitFor honors a tenant's configured rate override
func (rl *RateLimiter) limitFor(tc *Context) rate.Limit {
	if raw, ok := tc.Setting(SettingRateLimitRPS); ok {
		if rps, err := strconv.ParseFloat(raw, 64); err == nil && rps > 0 {
			return rate.Limit(rps)
		}
		rl.logger.Warn("invalid rate limit setting",
			zap.String("tenant_id", tc.TenantID()),
			zap.String("value", raw))
	}
	return rate.Limit(rl.cfg.RPS)
}

// Middleware rejects requests over the tenant's rate. It must run
// after the tenant resolution middleware.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, err := FromContext(r.Context())
			if err != nil {
				apperrors.WriteHTTP(w, r, err)
				return
			}

			if !rl.Allow(tc) {
				rl.metrics.RecordRateLimited(tc.TenantID())
				rl.logger.Warn("rate limit exceeded",
					zap.String("tenant_id", tc.TenantID()),
					zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "1")
				apperrors.WriteHTTP(w, r, apperrors.RateLimited(tc.TenantID()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Forget drops the tenant's bucket, used when a tenant is invalidated
// so a later reactivation starts from its current settings
func (rl *RateLimiter) Forget(tenantID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.limiters, tenantID)
}

// Stop terminates the sweep loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.cfg.IdleTTL)
			rl.mu.Lock()
			for id, tl := range rl.limiters {
				if tl.lastSeen.Before(cutoff) {
					delete(rl.limiters, id)
				}
			}
			rl.mu.Unlock()
		}
	}
}
