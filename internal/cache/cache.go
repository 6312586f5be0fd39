package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache holds the engine's short-lived shared state: mirrored job statuses,
// installed-model lists per vision backend and rate limit counters. Postgres stays the
// source of truth; everything here may be lost. Implementations must be safe for
// concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
	SetModelList(ctx context.Context, backend string, names []string, ttl time.Duration) error
	GetModelList(ctx context.Context, backend string) ([]string, bool, error)
	InvalidateModelList(ctx context.Context, backend string) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, JobStatusKey(jobID), status, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, JobStatusKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetModelList stores names as a JSON array. An empty list is stored too, so a backend
// with nothing installed is not asked again until ttl passes.
func (c *RedisCache) SetModelList(ctx context.Context, backend string, names []string, ttl time.Duration) error {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encoding model list: %w", err)
	}
	return c.client.Set(ctx, ModelAvailabilityKey(backend), data, ttl).Err()
}

func (c *RedisCache) GetModelList(ctx context.Context, backend string) ([]string, bool, error) {
	data, err := c.client.Get(ctx, ModelAvailabilityKey(backend)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, false, fmt.Errorf("decoding model list: %w", err)
	}
	return names, true, nil
}

func (c *RedisCache) InvalidateModelList(ctx context.Context, backend string) error {
	return c.client.Del(ctx, ModelAvailabilityKey(backend)).Err()
}

// IncrWithExpiry increments key and (re)arms its expiry in one transaction.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

var _ Cache = (*RedisCache)(nil)
