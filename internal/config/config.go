package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Router    RouterConfig    `mapstructure:"router"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RegistryConfig represents the PostgreSQL tenant registry configuration
type RegistryConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// RedisConfig represents the shared tenant record cache configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ResolverConfig represents tenant resolution configuration
type ResolverConfig struct {
	Strategies []string `mapstructure:"strategies"`
	BaseDomain string   `mapstructure:"base_domain"`
	Header     string   `mapstructure:"header"`
	Claim      string   `mapstructure:"claim"`
	Strict     bool     `mapstructure:"strict"`
}

// DirectoryConfig represents tenant directory cache configuration
type DirectoryConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheMaxSize int           `mapstructure:"cache_max_size"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// RouterConfig represents per-tenant connection routing configuration
type RouterConfig struct {
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	IdleTTL        time.Duration `mapstructure:"idle_ttl"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
}

// RateLimitConfig represents per-tenant rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// StorageConfig selects where tenant entity data lives
type StorageConfig struct {
	Mode string `mapstructure:"mode"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Storage modes
const (
	StorageModePostgres = "postgres"
	StorageModeMemory   = "memory"
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}

	if len(c.Resolver.Strategies) == 0 {
		return errors.New("resolver.strategies must name at least one strategy")
	}
	for _, s := range c.Resolver.Strategies {
		if !isValidStrategy(s) {
			return fmt.Errorf("resolver.strategies contains unknown strategy %q", s)
		}
	}
	if hasStrategy(c.Resolver.Strategies, "subdomain") && c.Resolver.BaseDomain == "" {
		return errors.New("resolver.base_domain is required when the subdomain strategy is enabled")
	}

	switch c.Storage.Mode {
	case StorageModePostgres, StorageModeMemory:
	case "":
		c.Storage.Mode = StorageModePostgres
	default:
		return fmt.Errorf("storage.mode must be %q or %q", StorageModePostgres, StorageModeMemory)
	}

	if c.Storage.Mode == StorageModePostgres {
		if c.Registry.Host == "" {
			return errors.New("registry.host is required")
		}
		if c.Registry.Database == "" {
			return errors.New("registry.database is required")
		}
		if c.Registry.User == "" {
			return errors.New("registry.user is required")
		}
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return errors.New("redis.host is required when redis is enabled")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// isValidStrategy checks if the resolution strategy is valid
func isValidStrategy(s string) bool {
	switch s {
	case "subdomain", "path", "header", "claim":
		return true
	default:
		return false
	}
}

func hasStrategy(strategies []string, want string) bool {
	for _, s := range strategies {
		if s == want {
			return true
		}
	}
	return false
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Registry: RegistryConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "realestate_registry",
			User:           "realestate",
			Password:       "",
			MaxConnections: 20,
			MinConnections: 5,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Resolver: ResolverConfig{
			Strategies: []string{"subdomain", "header"},
			BaseDomain: "realestate.example.com",
			Header:     "X-Tenant-ID",
			Claim:      "tenant_id",
			Strict:     false,
		},
		Directory: DirectoryConfig{
			CacheTTL:     30 * time.Minute,
			CacheMaxSize: 10000,
			FetchTimeout: 5 * time.Second,
			MaxRetries:   2,
			RetryBackoff: 100 * time.Millisecond,
		},
		Router: RouterConfig{
			AcquireTimeout: 2 * time.Second,
			DialTimeout:    5 * time.Second,
			IdleTTL:        15 * time.Minute,
			SweepInterval:  time.Minute,
			MaxConns:       4,
			MinConns:       0,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     50,
			Burst:   100,
		},
		Storage: StorageConfig{
			Mode: StorageModePostgres,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
