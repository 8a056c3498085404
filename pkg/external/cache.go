package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medirisk-server/internal/domain"
)

// redisStore is the subset of the Redis client used by the report cache
type redisStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// CacheClient stores enhanced reports in Redis
type CacheClient struct {
	redis      redisStore
	prefix     string
	defaultTTL time.Duration
}

// CachedReport represents a cached report with metadata
type CachedReport struct {
	Result    *domain.EnhancementResult `json:"result"`
	CachedAt  time.Time                 `json:"cached_at"`
	ExpiresAt time.Time                 `json:"expires_at"`
}

// NewCacheClient connects to Redis at config.RedisURL
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newCacheClient(client, config), nil
}

func newCacheClient(store redisStore, config domain.CacheConfig) *CacheClient {
	return &CacheClient{
		redis:      store,
		prefix:     config.KeyPrefix,
		defaultTTL: config.DefaultTTL,
	}
}

// GetReport retrieves a cached report
func (c *CacheClient) GetReport(ctx context.Context, key string) (*domain.EnhancementResult, bool, error) {
	fullKey := c.prefix + key

	val, err := c.redis.Get(ctx, fullKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached report: %w", err)
	}

	var cached CachedReport
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Result == nil {
		// corrupted entry
		c.redis.Del(ctx, fullKey)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, fullKey)
		return nil, false, nil
	}

	return cached.Result, true, nil
}

// SetReport caches a report; a zero ttl uses the default
func (c *CacheClient) SetReport(ctx context.Context, key string, result *domain.EnhancementResult, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()
	data, err := json.Marshal(CachedReport{
		Result:    result,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cached report: %w", err)
	}

	return c.redis.Set(ctx, c.prefix+key, data, ttl).Err()
}

// Ping checks if the Redis connection is alive
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}
