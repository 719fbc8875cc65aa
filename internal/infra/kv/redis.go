// Package kv implements the per-browser storage scope on Redis or in memory.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "leadchat:scope:"

// Redis keeps each scope in one hash; advisory locks are plain keys with a
// TTL next to it.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// ScopeTTL expires a scope after this long without writes (0 = never).
	ScopeTTL time.Duration
}

// NewRedis connects and pings.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisFromClient(client, cfg.ScopeTTL), nil
}

// NewRedisFromClient wraps an existing client (tests use miniredis).
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: defaultPrefix, ttl: ttl}
}

func (r *Redis) scopeKey(scope string) string {
	return r.prefix + scope
}

func (r *Redis) lockKey(scope, key string) string {
	return r.prefix + scope + ":lock:" + key
}

// Get reads one value from a scope.
func (r *Redis) Get(ctx context.Context, scope, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.scopeKey(scope), key).Result()
	if errors.Is(err, redis.Nil) {
		v, err = r.client.Get(ctx, r.lockKey(scope, key)).Result()
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes one value and refreshes the scope TTL.
func (r *Redis) Set(ctx context.Context, scope, key, value string) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.scopeKey(scope), key, value)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.scopeKey(scope), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes a value (or a lock) from a scope.
func (r *Redis) Delete(ctx context.Context, scope, key string) error {
	pipe := r.client.TxPipeline()
	pipe.HDel(ctx, r.scopeKey(scope), key)
	pipe.Del(ctx, r.lockKey(scope, key))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent is SET NX PX on a lock key.
func (r *Redis) SetIfAbsent(ctx context.Context, scope, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.lockKey(scope, key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
