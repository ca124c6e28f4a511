// Package cache holds short-lived copies of document query results. Redis is
// used when configured; otherwise entries live in process.
package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Store is the byte-level backend behind QueryCache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Counter reads an integer key, 0 when missing.
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

// LocalStore keeps entries in process memory.
type LocalStore struct {
	c *gocache.Cache
}

func NewLocalStore(ttl time.Duration) *LocalStore {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &LocalStore{c: gocache.New(ttl, 2*ttl)}
}

func (s *LocalStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := s.c.Get(key)
	if !found {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

func (s *LocalStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.c.Set(key, val, ttl)
	return nil
}

func (s *LocalStore) Counter(_ context.Context, key string) (int64, error) {
	v, found := s.c.Get(key)
	if !found {
		return 0, nil
	}
	n, _ := v.(int64)
	return n, nil
}

func (s *LocalStore) Incr(_ context.Context, key string) (int64, error) {
	// Add fails when the key exists, which is fine.
	_ = s.c.Add(key, int64(0), gocache.NoExpiration)
	return s.c.IncrementInt64(key, 1)
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, val, ttl).Err()
}

func (s *RedisStore) Counter(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, key).Result()
}
