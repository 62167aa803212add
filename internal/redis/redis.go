package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"careerchat/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client. A nil *Client is valid and reports
// ErrUnavailable from every call, so callers can run without redis.
type Client struct {
	inner *redis.Client
}

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

var ErrUnavailable = errors.New("redis client not initialized")

// NewRedisClient connects and pings the configured server.
func NewRedisClient(cfg config.RedisConfig) (*Client, error) {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}
	return Dial(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Dial connects with raw options.
func Dial(opts *redis.Options) (*Client, error) {
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Client{inner: client}, nil
}

func (c *Client) ready() bool {
	return c != nil && c.inner != nil
}

// Set stores a key with TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.ready() {
		return ErrUnavailable
	}
	return c.inner.Set(ctx, key, value, ttl).Err()
}

// Get fetches the key as string.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if !c.ready() {
		return "", ErrUnavailable
	}
	return c.inner.Get(ctx, key).Result()
}

// Incr bumps an integer key, creating it at 1.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	if !c.ready() {
		return 0, ErrUnavailable
	}
	return c.inner.Incr(ctx, key).Result()
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	if !c.ready() {
		return false, ErrUnavailable
	}
	n, err := c.inner.Exists(ctx, key).Result()
	return n > 0, err
}

// Del removes provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if !c.ready() {
		return ErrUnavailable
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

// TTL returns key ttl.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	if !c.ready() {
		return 0, ErrUnavailable
	}
	return c.inner.TTL(ctx, key).Result()
}

// Close closes client.
func (c *Client) Close() error {
	if !c.ready() {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
