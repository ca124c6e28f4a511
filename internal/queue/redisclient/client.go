// Package redisclient owns the shared redis connection used by the query
// cache and the readiness check.
package redisclient

import (
	"context"
	"time"

	"github.com/geocoder89/expertjobs/internal/cache"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

// New returns nil when no address is configured; callers fall back to the
// in-process cache.
func New(cfg Config) *Client {
	if cfg.Addr == "" {
		return nil
	}

	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	return &Client{redisdb: redisdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// Store exposes the connection as a query cache backend.
func (c *Client) Store() cache.Store {
	return cache.NewRedisStore(c.redisdb)
}

func (c *Client) Raw() *redis.Client {
	return c.redisdb
}
