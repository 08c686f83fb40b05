package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medreport/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner *redis.Client
}

var errNotInitialized = errors.New("redis client not initialized")

// NewRedisClient creates the redis client from app config and pings it.
func NewRedisClient(cfg config.RedisConfig) (*Client, error) {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Client{inner: client}, nil
}

// PushTrimmed appends values to the list at key, keeps only the last keep
// entries and resets the key TTL, in one transaction.
func (c *Client) PushTrimmed(ctx context.Context, key string, values []string, keep int64, ttl time.Duration) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	pipe := c.inner.TxPipeline()
	pipe.RPush(ctx, key, args...)
	if keep > 0 {
		pipe.LTrim(ctx, key, -keep, -1)
	}
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Range returns the whole list at key. A missing key is an empty list.
func (c *Client) Range(ctx context.Context, key string) ([]string, error) {
	if c == nil || c.inner == nil {
		return nil, errNotInitialized
	}
	return c.inner.LRange(ctx, key, 0, -1).Result()
}

// Expire refreshes the key TTL.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.Expire(ctx, key, ttl).Err()
}

// Del removes provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

// TTL returns key ttl.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	if c == nil || c.inner == nil {
		return 0, errNotInitialized
	}
	return c.inner.TTL(ctx, key).Result()
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
