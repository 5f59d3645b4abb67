package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamzazeryouh/RealEstate/internal/model"
)

const (
	recordKeyPrefix = "tenant:record:"
	aliasKeyPrefix  = "tenant:aliases:"
)

// RedisRecordCache implements RecordCache for Redis. It keeps a reverse
// index of the identifiers cached per tenant so DeleteTenant can purge
// every alias without scanning the keyspace.
type RedisRecordCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRecordCache creates a new Redis tenant record cache
func NewRedisRecordCache(host string, port int, password string, db int, logger *zap.Logger) (*RedisRecordCache, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRecordCache{
		client: client,
		logger: logger,
	}, nil
}

// Get retrieves a cached tenant record by identifier
func (c *RedisRecordCache) Get(ctx context.Context, identifier string) (*model.Tenant, error) {
	data, err := c.client.Get(ctx, recordKeyPrefix+identifier).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var tenant model.Tenant
	if err := json.Unmarshal(data, &tenant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tenant record: %w", err)
	}

	return &tenant, nil
}

// Set caches a tenant record under the identifier and records the
// identifier in the tenant's alias index
func (c *RedisRecordCache) Set(ctx context.Context, identifier string, tenant *model.Tenant, ttl time.Duration) error {
	data, err := json.Marshal(tenant)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant record: %w", err)
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, recordKeyPrefix+identifier, data, ttl)
	pipe.SAdd(ctx, aliasKeyPrefix+tenant.ID, identifier)
	// The index outlives the records slightly so invalidation still
	// finds aliases whose entries are about to expire
	pipe.Expire(ctx, aliasKeyPrefix+tenant.ID, ttl*2)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteTenant removes every cached record belonging to the tenant
func (c *RedisRecordCache) DeleteTenant(ctx context.Context, tenantID string) error {
	aliases, err := c.client.SMembers(ctx, aliasKeyPrefix+tenantID).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	keys := make([]string, 0, len(aliases)+2)
	for _, alias := range aliases {
		keys = append(keys, recordKeyPrefix+alias)
	}
	keys = append(keys, recordKeyPrefix+tenantID, aliasKeyPrefix+tenantID)

	return c.client.Del(ctx, keys...).Err()
}

// Ping checks the Redis connection
func (c *RedisRecordCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *RedisRecordCache) Close() error {
	return c.client.Close()
}
