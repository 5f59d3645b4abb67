package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing, so components never need to guard their calls.
type Metrics struct {
	// Resolution metrics
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec

	// Directory cache metrics
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	SharedLookups prometheus.Counter
	LookupRetries prometheus.Counter

	// Scope enforcement metrics
	ScopeChecks  *prometheus.CounterVec
	ScopeDenials *prometheus.CounterVec

	// Connection routing metrics
	PoolsActive     prometheus.Gauge
	PoolDials       *prometheus.CounterVec
	PoolEvictions   *prometheus.CounterVec
	AcquireDuration prometheus.Histogram
	AcquireTimeouts prometheus.Counter

	// Rate limiting metrics
	RateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates metrics registered on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered on the given registerer
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realestate_tenant_resolutions_total",
				Help: "Total number of tenant resolution attempts",
			},
			[]string{"strategy", "outcome"},
		),

		ResolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "realestate_tenant_resolution_duration_seconds",
				Help:    "Duration of tenant resolution including directory lookup",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realestate_tenant_cache_hits_total",
				Help: "Total number of tenant directory cache hits",
			},
			[]string{"cache_type"},
		),

		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realestate_tenant_cache_misses_total",
				Help: "Total number of tenant directory cache misses",
			},
			[]string{"cache_type"},
		),

		SharedLookups: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "realestate_tenant_shared_lookups_total",
				Help: "Total number of lookups collapsed into an in-flight fetch",
			},
		),

		LookupRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "realestate_tenant_lookup_retries_total",
				Help: "Total number of retried registry fetches",
			},
		),

		ScopeChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realestate_scope_checks_total",
				Help: "Total number of scope enforcement checks",
			},
			[]string{"operation", "outcome"},
		),

		ScopeDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realestate_scope_denials_total",
				Help: "Total number of denied cross-tenant accesses",
			},
			[]string{"reason"},
		),

		PoolsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "realestate_tenant_pools_active",
				Help: "Number of open per-tenant connection pools",
			},
		),

		PoolDials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realestate_tenant_pool_dials_total",
				Help: "Total number of per-tenant pool dials",
			},
			[]string{"status"},
		),

		PoolEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realestate_tenant_pool_evictions_total",
				Help: "Total number of per-tenant pools closed",
			},
			[]string{"reason"},
		),

		AcquireDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "realestate_tenant_acquire_duration_seconds",
				Help:    "Duration of tenant connection acquisition",
				Buckets: prometheus.DefBuckets,
			},
		),

		AcquireTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "realestate_tenant_acquire_timeouts_total",
				Help: "Total number of connection acquisitions that timed out",
			},
		),

		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realestate_rate_limited_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"tenant_id"},
		),
	}
}

// RecordResolution records a tenant resolution attempt
func (m *Metrics) RecordResolution(strategy, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(strategy, outcome).Inc()
	m.ResolutionDuration.WithLabelValues(strategy).Observe(duration)
}

// RecordCacheHit records a directory cache hit
func (m *Metrics) RecordCacheHit(cacheType string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a directory cache miss
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordSharedLookup records a lookup collapsed into an in-flight fetch
func (m *Metrics) RecordSharedLookup() {
	if m == nil {
		return
	}
	m.SharedLookups.Inc()
}

// RecordLookupRetry records a retried registry fetch
func (m *Metrics) RecordLookupRetry() {
	if m == nil {
		return
	}
	m.LookupRetries.Inc()
}

// RecordScopeCheck records a scope enforcement decision
func (m *Metrics) RecordScopeCheck(operation, outcome string) {
	if m == nil {
		return
	}
	m.ScopeChecks.WithLabelValues(operation, outcome).Inc()
}

// RecordScopeDenial records a denied cross-tenant access
func (m *Metrics) RecordScopeDenial(reason string) {
	if m == nil {
		return
	}
	m.ScopeDenials.WithLabelValues(reason).Inc()
}

// SetPoolsActive updates the open pool count
func (m *Metrics) SetPoolsActive(count int) {
	if m == nil {
		return
	}
	m.PoolsActive.Set(float64(count))
}

// RecordPoolDial records a per-tenant pool dial
func (m *Metrics) RecordPoolDial(status string) {
	if m == nil {
		return
	}
	m.PoolDials.WithLabelValues(status).Inc()
}

// RecordPoolEviction records a closed per-tenant pool
func (m *Metrics) RecordPoolEviction(reason string) {
	if m == nil {
		return
	}
	m.PoolEvictions.WithLabelValues(reason).Inc()
}

// RecordAcquire records a connection acquisition
func (m *Metrics) RecordAcquire(duration float64) {
	if m == nil {
		return
	}
	m.AcquireDuration.Observe(duration)
}

// RecordAcquireTimeout records an acquisition that timed out
func (m *Metrics) RecordAcquireTimeout() {
	if m == nil {
		return
	}
	m.AcquireTimeouts.Inc()
}

// RecordRateLimited records a rate limited request
func (m *Metrics) RecordRateLimited(tenantID string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(tenantID).Inc()
}

// MetricsServer is a separate HTTP server for Prometheus scrapes
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a metrics server serving the default registry
func NewMetricsServer(port int, path string, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		logger: logger,
	}
}

// Start starts the metrics server and blocks until it stops
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the metrics server
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
