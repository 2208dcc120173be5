// Package cache keeps finished evaluations in Redis. Keys are versioned by
// the caller, so entries are never invalidated, only left to expire.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/headline-goat/adlift/internal/engine"
)

const DefaultTTL = 30 * time.Second

// Connect builds a client from a redis:// URL or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// ResultsCache implements engine.Cache on Redis.
type ResultsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultsCache(client *redis.Client, ttl time.Duration) *ResultsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultsCache{client: client, ttl: ttl}
}

func (c *ResultsCache) Get(ctx context.Context, key string) (*engine.Evaluation, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ev engine.Evaluation
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, false, fmt.Errorf("decode cached evaluation: %w", err)
	}
	return &ev, true, nil
}

func (c *ResultsCache) Set(ctx context.Context, key string, ev *engine.Evaluation) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}
