package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"innexbot/internal/platform/config"
	"innexbot/pkg/platform/sentinel"
)

// connectTimeout bounds the startup ping when the config sets no dial timeout.
const connectTimeout = 3 * time.Second

// Client is the shared go-redis handle used by the collector rate limiter and
// the agent's Redis state backend.
type Client struct {
	*redis.Client
}

// New connects using cfg. It returns nil without error when no URL is set, so
// callers fall back to their in-memory implementation.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	tune(opts, cfg)

	c := &Client{Client: redis.NewClient(opts)}
	if err := c.Ping(ctx, opts.DialTimeout); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// tune copies the non-zero pool and timeout settings onto opts.
func tune(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	for _, d := range []struct {
		dst *time.Duration
		v   time.Duration
	}{
		{&opts.DialTimeout, cfg.DialTimeout},
		{&opts.ReadTimeout, cfg.ReadTimeout},
		{&opts.WriteTimeout, cfg.WriteTimeout},
	} {
		if d.v > 0 {
			*d.dst = d.v
		}
	}
}

// Ping checks the connection within timeout. Failures wrap
// sentinel.ErrUnavailable.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = connectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w: %w", c.Options().Addr, sentinel.ErrUnavailable, err)
	}
	return nil
}
