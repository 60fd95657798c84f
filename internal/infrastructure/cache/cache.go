package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/sensor-collector/internal/infrastructure/config"
)

const (
	defaultPingTimeout = 5 * time.Second

	// keyPrefix namespaces the latest-reading keys: sensor:last:{sensor_id}.
	keyPrefix = "sensor:last:"
)

// Client keeps the most recent stored reading of each sensor in Redis
// (or Valkey) for dashboards that should not query SQLite.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// Connect creates the Redis client and verifies it with a ping.
// Returns ErrDisabled when the cache is switched off in configuration.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{rdb: rdb, ttl: cfg.CacheTTL()}, nil
}

// LatestKey returns the Redis key holding a sensor's latest reading.
func LatestKey(sensorID string) string {
	return keyPrefix + sensorID
}

// SetLatest overwrites the cached reading for a sensor. Entries expire
// after the configured TTL so sensors that go quiet drop out of the cache.
func (c *Client) SetLatest(ctx context.Context, sensorID string, value []byte) error {
	if err := c.rdb.Set(ctx, LatestKey(sensorID), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching latest reading for %s: %w", sensorID, err)
	}
	return nil
}

// GetLatest returns the cached reading for a sensor, or ErrNotFound.
func (c *Client) GetLatest(ctx context.Context, sensorID string) ([]byte, error) {
	value, err := c.rdb.Get(ctx, LatestKey(sensorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest reading for %s: %w", sensorID, err)
	}
	return value, nil
}

// HealthCheck pings Redis.
func (c *Client) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := c.rdb.Ping(checkCtx).Err(); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("closing cache: %w", err)
	}
	return nil
}
