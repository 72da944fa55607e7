package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/imageflow/internal/cache"
)

// RedisBackend stores jobs as JSON strings in Redis. Pending and running jobs
// never expire; terminal jobs are kept for ttl.
type RedisBackend struct {
	redis     *cache.Manager
	keyPrefix string
	ttl       time.Duration
}

// NewRedisBackend creates a Redis-backed job store on an existing connection.
func NewRedisBackend(redis *cache.Manager, keyPrefix string, ttl time.Duration) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "imageflow:"
	}
	return &RedisBackend{
		redis:     redis,
		keyPrefix: keyPrefix + "job:",
		ttl:       ttl,
	}
}

// jobKey returns the Redis key for a job
func (b *RedisBackend) jobKey(id string) string {
	return b.keyPrefix + id
}

func (b *RedisBackend) Save(ctx context.Context, job *Job) error {
	var ttl time.Duration
	if job.State.IsTerminal() {
		ttl = b.ttl
	}
	if err := b.redis.SetJSON(ctx, b.jobKey(job.ID), job, ttl); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := b.redis.GetJSON(ctx, b.jobKey(id), &job)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return &job, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.redis.Ping(ctx)
}

func (b *RedisBackend) Close() error {
	return b.redis.Close()
}
