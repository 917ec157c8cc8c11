package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client is a thin read-through cache over Redis. Unified market views are
// stored as JSON blobs with a short TTL and invalidated whenever a style's
// market data changes.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// MarketViewKey builds the cache key for a style's unified market view
func MarketViewKey(styleID int64) string {
	return fmt.Sprintf("market:view:%d", styleID)
}

// Get returns the cached payload for a key, nil on a miss
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a payload under a key with a TTL
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// InvalidateStyle drops the cached market view for a style
func (c *Client) InvalidateStyle(ctx context.Context, styleID int64) error {
	return c.rdb.Del(ctx, MarketViewKey(styleID)).Err()
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.rdb.Close()
}
