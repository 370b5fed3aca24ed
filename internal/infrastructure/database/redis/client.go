// Package redis provides the Redis-backed rule cache and the per-matter
// distributed lock that serialises rule-engine runs.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// Client wraps the go-redis client with the configured key prefix.
type Client struct {
	rdb    *redis.Client
	prefix string
	logger logging.Logger

	mu     sync.RWMutex
	closed bool
}

// NewClient connects and verifies the connection with a short ping.
func NewClient(cfg config.RedisConfig, logger logging.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "ping redis")
	}

	logger.Info("redis connected",
		logging.String("addr", cfg.Addr),
		logging.Int("db", cfg.DB))

	return &Client{rdb: rdb, prefix: cfg.KeyPrefix, logger: logger}, nil
}

// NewClientWithRedis wraps an existing go-redis client.  Used by tests
// against miniredis or a testcontainers instance.
func NewClientWithRedis(rdb *redis.Client, prefix string, logger logging.Logger) *Client {
	return &Client{rdb: rdb, prefix: prefix, logger: logger}
}

// Key namespaces a cache key under the configured prefix.
func (c *Client) Key(parts ...interface{}) string {
	key := c.prefix
	for _, p := range parts {
		key += fmt.Sprintf(":%v", p)
	}
	return key
}

// Redis exposes the underlying client.
func (c *Client) Redis() *redis.Client { return c.rdb }

// Ping checks liveness, used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "redis ping")
	}
	return nil
}

// Close shuts the connection pool down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rdb.Close()
}
