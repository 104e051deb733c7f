// Package cache provides the short-TTL result cache keyed by normalized
// request signature. The cache is strictly best-effort: when the backing
// store is unreachable every read is a miss and every write is dropped, and
// no cache error ever reaches a caller.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/bridge-route-ea/internal/model"
)

// RedisCache stores aggregate results as JSON values with a TTL
type RedisCache struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedisCache creates a result cache on an existing-style Redis URL
func NewRedisCache(url string, opTimeout time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisCache{
		client:    redis.NewClient(opt),
		opTimeout: opTimeout,
	}, nil
}

// Get returns the cached result for key, or false on miss, expiry, or any
// store error. Errors are logged at debug level only.
func (c *RedisCache) Get(ctx context.Context, key string) (*model.AggregatedResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.Debugf("Cache read failed for %s: %v", key, err)
		}
		return nil, false
	}

	var result model.AggregatedResult
	if err := json.Unmarshal(data, &result); err != nil {
		logrus.Debugf("Cache entry for %s is corrupt, treating as miss: %v", key, err)
		return nil, false
	}
	return &result, true
}

// Set writes the result with the given TTL. Write failures are dropped;
// concurrent writers for the same key are last-write-wins.
func (c *RedisCache) Set(ctx context.Context, key string, result *model.AggregatedResult, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	data, err := json.Marshal(result)
	if err != nil {
		logrus.Debugf("Cache marshal failed for %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logrus.Debugf("Cache write failed for %s: %v", key, err)
	}
}

// Close releases the underlying connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
