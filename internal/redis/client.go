// Package redis wraps the go-redis client with the small surface the ingest
// service needs: membership marks for the shared dedup tier and the raw
// client handle for redsync write locks.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"lifelog-ingest/internal/config"
)

type Client struct {
	rdb *redis.Client
}

// NewClient connects to redis using the service configuration. The
// connection is verified with a short ping before use.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.RedisAddress == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	db, _ := strconv.Atoi(cfg.RedisDB)
	poolSize, _ := strconv.Atoi(cfg.RedisPoolSize)
	if poolSize == 0 {
		poolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       db,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromAddr connects to a bare address; used by tests with miniredis.
func NewClientFromAddr(addr string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Exists reports whether the key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkOnce sets the key with a TTL if it is not already present, returning
// whether this call created it.
func (c *Client) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}

// GetGoRedisClient exposes the underlying client for the redsync pool.
func (c *Client) GetGoRedisClient() *redis.Client {
	return c.rdb
}

func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
