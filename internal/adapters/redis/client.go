// Package redis adapts go-redis v9 to the service ports: an idempotency
// record store, a redsync-based distributed locker and a health checker.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.HealthChecker = (*Client)(nil)

// Client wraps a go-redis client with the configured key prefix.
type Client struct {
	rdb    *goredis.Client
	prefix string
	logger *slog.Logger
}

// New returns a Client for cfg. No connection is made until first use.
func New(cfg config.RedisConfig, logger *slog.Logger) *Client {
	return &Client{
		rdb: goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.KeyPrefix,
		logger: logger.With(slog.String("component", "redis")),
	}
}

// Raw exposes the underlying go-redis client.
func (c *Client) Raw() *goredis.Client {
	return c.rdb
}

// Key prepends the configured prefix.
func (c *Client) Key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += p
	}
	return k
}

// Name implements [ports.HealthChecker].
func (c *Client) Name() string {
	return "redis"
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
