// Package main provides the entry point for the tenant platform service.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hamzazeryouh/RealEstate/internal/audit"
	"github.com/hamzazeryouh/RealEstate/internal/config"
	"github.com/hamzazeryouh/RealEstate/internal/health"
	"github.com/hamzazeryouh/RealEstate/internal/metrics"
	"github.com/hamzazeryouh/RealEstate/internal/scope"
	"github.com/hamzazeryouh/RealEstate/internal/server"
	"github.com/hamzazeryouh/RealEstate/internal/service"
	"github.com/hamzazeryouh/RealEstate/internal/store"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
	"github.com/hamzazeryouh/RealEstate/internal/tenantdb"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting tenant platform")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_mode", cfg.Storage.Mode),
		zap.Strings("resolver_strategies", cfg.Resolver.Strategies))

	// Metrics server. A nil *Metrics records nothing, so components
	// are wired the same way whether metrics are enabled or not.
	var (
		m             *metrics.Metrics
		metricsServer *metrics.MetricsServer
	)
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics()
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	// Tenant registry and entity storage
	var (
		tenants  store.TenantStore
		entities store.EntityStore
		router   *tenantdb.Router
	)
	switch cfg.Storage.Mode {
	case config.StorageModeMemory:
		tenants = store.NewMemoryTenantStore(logger)
		entities = store.NewMemoryEntityStore()
		logger.Info("using in-memory stores")
	default:
		registry, err := store.NewPostgresTenantStore(
			cfg.Registry.Host,
			cfg.Registry.Port,
			cfg.Registry.Database,
			cfg.Registry.User,
			cfg.Registry.Password,
			cfg.Registry.MaxConnections,
			cfg.Registry.MinConnections,
			logger,
		)
		if err != nil {
			logger.Fatal("failed to initialize tenant registry", zap.Error(err))
		}
		tenants = registry

		router = tenantdb.NewRouter(nil, tenantdb.RouterConfig{
			AcquireTimeout: cfg.Router.AcquireTimeout,
			DialTimeout:    cfg.Router.DialTimeout,
			IdleTTL:        cfg.Router.IdleTTL,
			SweepInterval:  cfg.Router.SweepInterval,
			MaxConns:       cfg.Router.MaxConns,
			MinConns:       cfg.Router.MinConns,
		}, m, logger)
		entities = tenantdb.NewPostgresEntityStore(router, logger)
		logger.Info("tenant registry and connection router initialized",
			zap.String("registry_host", cfg.Registry.Host),
			zap.String("registry_database", cfg.Registry.Database))
	}

	// Shared record cache
	var shared store.RecordCache
	if cfg.Redis.Enabled {
		redisCache, err := store.NewRedisRecordCache(
			cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("failed to initialize shared record cache", zap.Error(err))
		}
		shared = redisCache
		logger.Info("shared record cache initialized", zap.String("host", cfg.Redis.Host))
	}

	directory := tenancy.NewDirectory(tenants, shared, tenancy.DirectoryConfig{
		CacheTTL:     cfg.Directory.CacheTTL,
		CacheMaxSize: cfg.Directory.CacheMaxSize,
		FetchTimeout: cfg.Directory.FetchTimeout,
		MaxRetries:   cfg.Directory.MaxRetries,
		RetryBackoff: cfg.Directory.RetryBackoff,
	}, m, logger)

	var rateLimiter *tenancy.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = tenancy.NewRateLimiter(tenancy.RateLimiterConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		}, m, logger)
	}

	// Tenant invalidation fans out: pooled connections are revoked and
	// the rate bucket is dropped so stale state cannot outlive the
	// registry change.
	directory.OnInvalidate(func(tenantID string) {
		if router != nil {
			router.Revoke(tenantID)
		}
		if rateLimiter != nil {
			rateLimiter.Forget(tenantID)
		}
	})

	resolver, err := tenancy.NewResolver(resolverConfig(cfg.Resolver))
	if err != nil {
		logger.Fatal("failed to initialize resolver", zap.Error(err))
	}

	auditor := audit.NewZapRecorder(logger)
	enforcer := scope.NewEnforcer(entities, auditor, m, logger)

	httpServer := server.NewServer(cfg, server.Deps{
		Tenants:     tenants,
		Directory:   directory,
		Resolver:    resolver,
		RateLimiter: rateLimiter,
		Properties:  service.NewPropertyService(enforcer, logger),
		Checker:     health.NewChecker(tenants, shared, router, logger),
		Auditor:     auditor,
		Metrics:     m,
	}, logger)
	httpServer.SetupRoutes()

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("HTTP server started", zap.Int("port", cfg.Server.Port))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}
	if rateLimiter != nil {
		rateLimiter.Stop()
	}
	if router != nil {
		router.Close()
	}
	if shared != nil {
		if err := shared.Close(); err != nil {
			logger.Error("failed to close shared record cache", zap.Error(err))
		}
	}
	tenants.Close()

	logger.Info("tenant platform shutdown complete")
}

// resolverConfig maps the config file strategy names onto the resolver's
// strategy chain
func resolverConfig(cfg config.ResolverConfig) tenancy.ResolverConfig {
	order := make([]tenancy.Strategy, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		order = append(order, tenancy.Strategy(s))
	}
	return tenancy.ResolverConfig{
		Order:      order,
		BaseDomain: cfg.BaseDomain,
		Header:     cfg.Header,
		Claim:      cfg.Claim,
		Strict:     cfg.Strict,
	}
}

// initLogger initializes the zap logger.
func initLogger() *zap.Logger {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var level zapcore.Level
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var cfg zap.Config
	if os.Getenv("LOG_FORMAT") == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
