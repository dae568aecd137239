package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Provider on top of a Redis server.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to Redis and pings it to fail fast on bad configuration.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		cerr := client.Close()
		if cerr != nil {
			return nil, fmt.Errorf("ping redis at %s: %w (close: %v)", addr, err, cerr)
		}
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

// Get returns the value at key, reporting a miss for absent keys.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value with a TTL.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Incr atomically increments key. The expiry is only set when the increment
// produced the first count, which keeps the fixed window anchored to the
// first submission under concurrent writers.
func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if count == 1 && ttl > 0 {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return count, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
