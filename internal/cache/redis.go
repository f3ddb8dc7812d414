// Affinity - Hybrid Recommendation Engine
// Copyright 2026 T. Ellison (tessellon)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tessellon/affinity

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces cache keys so a shared Redis database stays safe
// to Clear.
const keyPrefix = "affinity:"

// dialTimeout bounds the connection check in OpenRedis.
const dialTimeout = 5 * time.Second

// Redis stores cache entries in a Redis database. TTL handling is
// delegated to the server, so entries expire even while the process is
// down.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing client. The cache takes ownership of the
// client and closes it in Close.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// OpenRedis connects to the given address and verifies the connection
// with a ping before returning.
func OpenRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	return NewRedis(client), nil
}

// Get returns the payload stored under key, or ErrMiss.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

// Set stores value under key with the given TTL. A non-positive TTL
// stores the entry without expiration.
func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear removes every key in the cache namespace, scanning in batches to
// keep the server responsive.
func (c *Redis) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 256).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the underlying client.
func (c *Redis) Close() error {
	return c.client.Close()
}
