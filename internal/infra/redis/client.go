package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/infra/config"
)

const (
	dialTimeout  = 5 * time.Second
	opTimeout    = 3 * time.Second
	pingTimeout  = 5 * time.Second
	maxIdleTime  = 5 * time.Minute
	clientPool   = 10
	clientIdle   = 2
	clientRetry  = 3
	poolWaitTime = 4 * time.Second
)

// Client wraps the go-redis client with a startup check and lifecycle hooks.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// NewClient opens the Redis connection pool and pings it before returning.
func NewClient(cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     clientPool,
		MinIdleConns: clientIdle,
		MaxRetries:   clientRetry,

		DialTimeout:  dialTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,

		PoolTimeout:     poolWaitTime,
		ConnMaxIdleTime: maxIdleTime,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Int("db", cfg.DB),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
	)

	return &Client{client: client, logger: logger}, nil
}

// Client returns the underlying redis.Client for direct use by repositories.
func (c *Client) Client() *redis.Client {
	return c.client
}

// HealthCheck verifies Redis connectivity for the readiness probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close shuts the connection pool down.
func (c *Client) Close() error {
	c.logger.Info("closing redis connection")
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
