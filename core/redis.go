package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"warptrace/metrics"
)

// Cache key prefixes, one per cached document type.
const (
	CacheKeyAnalysisPrefix = "analysis:"
	CacheKeyTimelinePrefix = "timeline:"
)

// AnalysisCacheKey is the cache key for an upload's assembled analysis document.
func AnalysisCacheKey(uploadID string) string {
	return CacheKeyAnalysisPrefix + uploadID
}

// TimelineCacheKey is the cache key for an upload's event timeline.
func TimelineCacheKey(uploadID string) string {
	return CacheKeyTimelinePrefix + uploadID
}

// maxCachedDocBytes caps a single cached document. An analysis document for
// a huge upload can reach tens of megabytes once events are embedded; past
// this size recomputing is cheaper than shuttling it through Redis.
const maxCachedDocBytes = 10 << 20

// RedisCache stores JSON-encoded analysis documents so repeated result
// fetches skip detection and grouping. All methods are safe for concurrent
// use; errors are returned wrapped and counted, never fatal to the caller.
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache connects a cache to the given Redis instance. The connection
// is lazy; call Ping to verify reachability.
func NewRedisCache(addr, password string, db, poolSize int, logger *zap.SugaredLogger) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
			PoolSize: poolSize,
		}),
		logger: logger,
	}
}

// Get unmarshals the cached value for key into dest. A missing key returns
// (false, nil) so callers can fall through to recomputation without an
// error branch.
func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheMisses.WithLabelValues("redis").Inc()
			return false, nil
		}
		metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		return false, fmt.Errorf("decode cached value for %s: %w", key, err)
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	return true, nil
}

// Set stores value under key for the given TTL. Values over maxCachedDocBytes
// are rejected rather than cached.
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		return fmt.Errorf("encode value for %s: %w", key, err)
	}

	if len(data) > maxCachedDocBytes {
		metrics.CacheErrors.WithLabelValues("redis", "size_limit").Inc()
		rc.logger.Warnw("Refusing to cache oversized document",
			"key", key,
			"size", len(data),
			"limit", maxCachedDocBytes)
		return fmt.Errorf("value size %d for %s is over the %d byte cache limit", len(data), key, maxCachedDocBytes)
	}

	if err := rc.client.Set(ctx, key, data, ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes key from the cache. Deleting an absent key is not an error.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

// Exists reports whether key is present.
func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := rc.client.Exists(ctx, key).Result()
	return count > 0, err
}

// Ping verifies the Redis connection.
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}
