package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	cfg := DefaultConfig()

	// Set up viper
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Read config file (optional - if file doesn't exist, continue with defaults)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Warning: Could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
	} else {
		// Unmarshal file contents
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	applyEnvironmentOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	// Server configuration
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// Registry configuration
	if host := os.Getenv("REGISTRY_HOST"); host != "" {
		cfg.Registry.Host = host
	}
	if port := os.Getenv("REGISTRY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Registry.Port = p
		}
	}
	if name := os.Getenv("REGISTRY_DATABASE"); name != "" {
		cfg.Registry.Database = name
	}
	if user := os.Getenv("REGISTRY_USER"); user != "" {
		cfg.Registry.User = user
	}
	if password := os.Getenv("REGISTRY_PASSWORD"); password != "" {
		cfg.Registry.Password = password
	}

	// Redis configuration
	if enabled := os.Getenv("REDIS_ENABLED"); enabled != "" {
		cfg.Redis.Enabled = enabled == "true" || enabled == "1"
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis.Host = host
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Redis.Port = p
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	// Resolver configuration
	if baseDomain := os.Getenv("BASE_DOMAIN"); baseDomain != "" {
		cfg.Resolver.BaseDomain = baseDomain
	}
	if strategies := os.Getenv("RESOLVER_STRATEGIES"); strategies != "" {
		parts := strings.Split(strategies, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			cfg.Resolver.Strategies = out
		}
	}

	// Storage configuration
	if mode := os.Getenv("STORAGE_MODE"); mode != "" {
		cfg.Storage.Mode = mode
	}

	// Logging configuration
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
