package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each scope as a Redis hash, one field per key.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore wraps an existing client. Every write refreshes the scope's TTL.
func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		prefix:    "travel:scope:",
		retention: retention,
	}
}

// DialRedis connects and pings
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (r *RedisStore) hashKey(scope string) string {
	return r.prefix + scope
}

func (r *RedisStore) Get(ctx context.Context, scope, key string) ([]byte, error) {
	raw, err := r.client.HGet(ctx, r.hashKey(scope), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return raw, nil
}

func (r *RedisStore) Set(ctx context.Context, scope, key string, value []byte) error {
	hash := r.hashKey(scope)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, hash, key, value)
	if r.retention > 0 {
		pipe.Expire(ctx, hash, r.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, scope string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.hashKey(scope), keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
