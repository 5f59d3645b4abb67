// Package server assembles the HTTP surface: admin API, tenant-facing
// API behind the resolution middleware, and health endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hamzazeryouh/RealEstate/internal/audit"
	"github.com/hamzazeryouh/RealEstate/internal/config"
	apperrors "github.com/hamzazeryouh/RealEstate/internal/errors"
	"github.com/hamzazeryouh/RealEstate/internal/handler"
	"github.com/hamzazeryouh/RealEstate/internal/health"
	"github.com/hamzazeryouh/RealEstate/internal/metrics"
	"github.com/hamzazeryouh/RealEstate/internal/middleware"
	"github.com/hamzazeryouh/RealEstate/internal/service"
	"github.com/hamzazeryouh/RealEstate/internal/store"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
)

// Deps carries the wired components the server serves. RateLimiter and
// Metrics may be nil.
type Deps struct {
	Tenants     store.TenantStore
	Directory   *tenancy.Directory
	Resolver    *tenancy.Resolver
	RateLimiter *tenancy.RateLimiter
	Properties  *service.PropertyService
	Checker     *health.Checker
	Auditor     audit.Recorder
	Metrics     *metrics.Metrics
}

// Server is the HTTP server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	deps       Deps
	admin      *handler.AdminHandler
	properties *handler.PropertyHandler
	logger     *zap.Logger
	cfg        *config.Config
}

// NewServer creates the HTTP server and its handlers
func NewServer(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		deps:       deps,
		admin:      handler.NewAdminHandler(deps.Tenants, deps.Directory, logger),
		properties: handler.NewPropertyHandler(deps.Properties, logger),
		logger:     logger,
		cfg:        cfg,
	}
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() {
	chain := middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
	)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	s.router.HandleFunc("/health", s.deps.Checker.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.deps.Checker.ReadinessHandler).Methods(http.MethodGet)

	// Admin surface: tenant registry management, no tenant resolution
	admin := s.router.PathPrefix("/admin").Subrouter()
	s.admin.RegisterRoutes(admin)

	// Tenant-facing surface: every request resolves a tenant first
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(tenancy.Middleware(s.deps.Resolver, s.deps.Directory, s.deps.Auditor, s.deps.Metrics, s.logger))
	if s.deps.RateLimiter != nil {
		api.Use(s.deps.RateLimiter.Middleware())
	}
	s.properties.RegisterRoutes(api)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, r, http.StatusNotFound, "endpoint not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeRouteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("host", s.cfg.Server.Host),
		zap.Int("port", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the http.Handler for the server, for tests
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// writeRouteError writes an error for requests that match no route.
// These never reach a handler, so the status is chosen here rather
// than derived from an error code.
func writeRouteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apperrors.ErrorResponse{
		Status:    "error",
		ErrorCode: apperrors.CodeInvalidArgument,
		Message:   message,
		RequestID: r.Header.Get("X-Request-ID"),
	})
}
