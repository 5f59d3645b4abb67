package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolver.Strategies = []string{"subdomain", "cookie"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cookie")
}

func TestValidateRequiresBaseDomainForSubdomain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolver.BaseDomain = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_domain")
}

func TestValidateRequiresRegistryForPostgresMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registry.Host = ""

	assert.Error(t, cfg.Validate())

	// Memory mode needs no registry database
	cfg.Storage.Mode = StorageModeMemory
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownStorageMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Mode = "cassandra"
	assert.Error(t, cfg.Validate())
}

func TestValidateDefaultsEmptyStorageMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Mode = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageModePostgres, cfg.Storage.Mode)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: 127.0.0.1
  port: 9000
resolver:
  strategies: [header, path]
  header: X-Org
directory:
  cache_ttl: 5m
storage:
  mode: memory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"header", "path"}, cfg.Resolver.Strategies)
	assert.Equal(t, "X-Org", cfg.Resolver.Header)
	assert.Equal(t, "5m0s", cfg.Directory.CacheTTL.String())
	assert.Equal(t, StorageModeMemory, cfg.Storage.Mode)
	// Untouched sections keep their defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8888")
	t.Setenv("BASE_DOMAIN", "app.example.org")
	t.Setenv("RESOLVER_STRATEGIES", "header, claim")
	t.Setenv("STORAGE_MODE", "memory")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	applyEnvironmentOverrides(cfg)

	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, "app.example.org", cfg.Resolver.BaseDomain)
	assert.Equal(t, []string{"header", "claim"}, cfg.Resolver.Strategies)
	assert.Equal(t, StorageModeMemory, cfg.Storage.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
