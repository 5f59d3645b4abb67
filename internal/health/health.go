// Package health provides liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hamzazeryouh/RealEstate/internal/store"
	"github.com/hamzazeryouh/RealEstate/internal/tenantdb"
)

// Checker probes the registry and the shared cache. The tenant pool
// count is reported for visibility but never fails readiness, because
// pools are dialed lazily.
type Checker struct {
	registry store.TenantStore
	cache    store.RecordCache
	router   *tenantdb.Router
	logger   *zap.Logger
}

// Status is the health endpoint response body
type Status struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewChecker creates a health checker. Cache and router may be nil.
func NewChecker(
	registry store.TenantStore,
	cache store.RecordCache,
	router *tenantdb.Router,
	logger *zap.Logger,
) *Checker {
	return &Checker{
		registry: registry,
		cache:    cache,
		router:   router,
		logger:   logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *Checker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, Status{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	})
}

// ReadinessHandler handles readiness probe requests
func (h *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if err := h.checkRegistry(ctx); err != nil {
		h.logger.Error("registry health check failed", zap.Error(err))
		checks["registry"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		checks["registry"] = "healthy"
	}

	if err := h.checkCache(ctx); err != nil {
		h.logger.Error("cache health check failed", zap.Error(err))
		checks["cache"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else if h.cache != nil {
		checks["cache"] = "healthy"
	}

	if h.router != nil {
		checks["tenant_pools"] = strconv.Itoa(h.router.ActivePools())
	}

	status := Status{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}
	if allHealthy {
		status.Status = "ready"
		writeStatus(w, http.StatusOK, status)
		return
	}
	status.Status = "not_ready"
	writeStatus(w, http.StatusServiceUnavailable, status)
}

func (h *Checker) checkRegistry(ctx context.Context) error {
	if h.registry == nil {
		return nil
	}
	return h.registry.Ping(ctx)
}

func (h *Checker) checkCache(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.Ping(ctx)
}

func writeStatus(w http.ResponseWriter, code int, status Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
