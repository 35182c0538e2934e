package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/financetracker/backend/internal/config"
	"github.com/financetracker/backend/internal/logger"
	"github.com/financetracker/backend/internal/metrics"
)

// AdminStatsKey holds the cached admin dashboard counts.
const AdminStatsKey = "admin:stats"

// SummaryKey is the per-user dashboard summary key.
func SummaryKey(userID uuid.UUID) string {
	return "summary:" + userID.String()
}

// Cache is a JSON-over-Redis read-through cache. A nil *Cache is valid and
// behaves as an always-empty cache, so callers never branch on whether
// Redis is configured.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New connects to cfg.Addr and pings it. An empty address returns a nil
// cache and no error.
func New(ctx context.Context, cfg config.Redis, log *logger.Logger, m *metrics.Metrics) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache.New: ping %s: %w", cfg.Addr, err)
	}

	c := NewWithClient(client, cfg.CacheTTL, log, m)
	c.log.Info(ctx, "connected to redis", map[string]any{"addr": cfg.Addr})
	return c, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		client:  client,
		ttl:     ttl,
		log:     log.WithComponent("cache"),
		metrics: m,
	}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// GetJSON decodes the value at key into dst and reports whether it was
// found. Redis failures and undecodable entries count as misses.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	if c == nil {
		return false
	}

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.IncCounter(metrics.CounterCacheMisses)
		c.log.Debug(ctx, "cache miss", map[string]any{"key": key})
		return false
	}
	if err != nil {
		c.metrics.IncCounter(metrics.CounterCacheMisses)
		c.log.Warn(ctx, "cache get failed", map[string]any{"key": key, "error": err.Error()})
		return false
	}

	if err := json.Unmarshal(val, dst); err != nil {
		c.metrics.IncCounter(metrics.CounterCacheMisses)
		c.log.Warn(ctx, "cache entry undecodable", map[string]any{"key": key, "error": err.Error()})
		return false
	}

	c.metrics.IncCounter(metrics.CounterCacheHits)
	c.log.Debug(ctx, "cache hit", map[string]any{"key": key})
	return true
}

// SetJSON stores v under key with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache.SetJSON: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache set failed", map[string]any{"key": key, "error": err.Error()})
		return fmt.Errorf("cache.SetJSON: %w", err)
	}
	return nil
}

// Delete removes keys. Failures are logged, not returned: a stale entry
// expires with its TTL.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn(ctx, "cache delete failed", map[string]any{"keys": keys, "error": err.Error()})
	}
}
