// Package main provides the tenant registry seed tool. It loads a YAML
// fixture of tenants, upserts them into the registry and can provision
// the entity schema on each tenant database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hamzazeryouh/RealEstate/internal/config"
	"github.com/hamzazeryouh/RealEstate/internal/model"
	"github.com/hamzazeryouh/RealEstate/internal/store"
	"github.com/hamzazeryouh/RealEstate/internal/tenancy"
	"github.com/hamzazeryouh/RealEstate/internal/tenantdb"
)

type fixture struct {
	Tenants []fixtureTenant `yaml:"tenants"`
}

type fixtureTenant struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Identifiers []string          `yaml:"identifiers"`
	State       string            `yaml:"state"`
	Settings    map[string]string `yaml:"settings"`
	Connection  fixtureConnection `yaml:"connection"`
}

type fixtureConnection struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	fixturePath := flag.String("fixture", "tenants.yaml", "path to tenant fixture file")
	dryRun := flag.Bool("dry-run", false, "validate the fixture without writing")
	ensureSchema := flag.Bool("ensure-schema", false, "provision the entity schema on each active tenant database")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	if err := run(*configPath, *fixturePath, *dryRun, *ensureSchema, logger); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func run(configPath, fixturePath string, dryRun, ensureSchema bool, logger *zap.Logger) error {
	fx, err := loadFixture(fixturePath)
	if err != nil {
		return err
	}
	logger.Info("fixture loaded",
		zap.String("path", fixturePath),
		zap.Int("tenants", len(fx.Tenants)))

	if dryRun {
		for _, ft := range fx.Tenants {
			logger.Info("would seed tenant",
				zap.String("tenant_id", ft.ID),
				zap.String("state", ft.State),
				zap.Strings("identifiers", ft.Identifiers))
		}
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	registry, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	seeded := make([]*model.Tenant, 0, len(fx.Tenants))
	for _, ft := range fx.Tenants {
		tenant, err := upsertTenant(ctx, registry, ft)
		if err != nil {
			return fmt.Errorf("failed to seed tenant %q: %w", ft.ID, err)
		}
		logger.Info("tenant seeded",
			zap.String("tenant_id", tenant.ID),
			zap.String("state", string(tenant.State)),
			zap.Int64("version", tenant.Version))
		seeded = append(seeded, tenant)
	}

	if ensureSchema {
		if cfg.Storage.Mode != config.StorageModePostgres {
			logger.Warn("schema provisioning skipped, storage mode is not postgres")
			return nil
		}
		return provisionSchemas(ctx, cfg, seeded, logger)
	}
	return nil
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file: %w", err)
	}
	if len(fx.Tenants) == 0 {
		return nil, errors.New("fixture contains no tenants")
	}

	for i, ft := range fx.Tenants {
		if ft.ID == "" {
			return nil, fmt.Errorf("tenant %d: id is required", i)
		}
		if ft.Name == "" {
			return nil, fmt.Errorf("tenant %q: name is required", ft.ID)
		}
		if ft.State == "" {
			fx.Tenants[i].State = string(model.StateProvisioning)
			continue
		}
		switch model.TenantState(ft.State) {
		case model.StateProvisioning, model.StateActive, model.StateSuspended:
		case model.StateDeleted:
			return nil, fmt.Errorf("tenant %q: deleted tenants cannot be seeded", ft.ID)
		default:
			return nil, fmt.Errorf("tenant %q: unknown state %q", ft.ID, ft.State)
		}
	}
	return &fx, nil
}

func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.PostgresTenantStore, error) {
	if cfg.Storage.Mode == config.StorageModeMemory {
		return nil, errors.New("seeding an in-memory registry is pointless, it is empty on every start")
	}
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
		return nil, fmt.Errorf("failed to open tenant registry: %w", err)
	}
	if err := registry.EnsureSchema(ctx); err != nil {
		registry.Close()
		return nil, err
	}
	return registry, nil
}

// upsertTenant creates the tenant or, when it already exists, applies
// the fixture over the stored record under optimistic locking.
func upsertTenant(ctx context.Context, registry store.TenantStore, ft fixtureTenant) (*model.Tenant, error) {
	now := time.Now().UTC()
	tenant := &model.Tenant{
		ID:          ft.ID,
		Name:        ft.Name,
		Identifiers: ft.Identifiers,
		Connection: model.ConnectionInfo{
			Host:     ft.Connection.Host,
			Port:     ft.Connection.Port,
			Database: ft.Connection.Database,
			User:     ft.Connection.User,
			Password: ft.Connection.Password,
			MaxConns: ft.Connection.MaxConns,
			MinConns: ft.Connection.MinConns,
		},
		Settings:  ft.Settings,
		State:     model.TenantState(ft.State),
		UpdatedAt: now,
	}

	existing, err := registry.GetByID(ctx, ft.ID)
	switch {
	case err == nil:
		tenant.CreatedAt = existing.CreatedAt
		tenant.Version = existing.Version + 1
		if err := registry.Update(ctx, tenant); err != nil {
			return nil, err
		}
	case errors.Is(err, store.ErrNotFound):
		tenant.CreatedAt = now
		tenant.Version = 1
		if err := registry.Create(ctx, tenant); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return tenant, nil
}

// provisionSchemas dials each active tenant's database through the
// router and creates the entity tables. Non-active tenants are skipped
// because the router refuses to dial them.
func provisionSchemas(ctx context.Context, cfg *config.Config, tenants []*model.Tenant, logger *zap.Logger) error {
	router := tenantdb.NewRouter(nil, tenantdb.RouterConfig{
		AcquireTimeout: cfg.Router.AcquireTimeout,
		DialTimeout:    cfg.Router.DialTimeout,
		MaxConns:       cfg.Router.MaxConns,
		MinConns:       cfg.Router.MinConns,
	}, nil, logger)
	defer router.Close()

	entities := tenantdb.NewPostgresEntityStore(router, logger)

	for _, tenant := range tenants {
		if tenant.State != model.StateActive {
			logger.Info("schema provisioning skipped",
				zap.String("tenant_id", tenant.ID),
				zap.String("state", string(tenant.State)))
			continue
		}

		tc := tenancy.NewContext(tenant, "", time.Now())
		if err := entities.EnsureSchema(tenancy.WithContext(ctx, tc)); err != nil {
			return fmt.Errorf("failed to provision schema for tenant %q: %w", tenant.ID, err)
		}
		logger.Info("tenant schema provisioned", zap.String("tenant_id", tenant.ID))
	}
	return nil
}
