package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/returnordie/til-i-allt-sub001/internal/metrics"
	"go.uber.org/zap"
)

// ErrMiss is returned by Store.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Store is a byte-oriented key/value cache with expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStore adapts a redis client to Store.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	return s.rdb.Del(ctx, keys...).Err()
}

// ReadThrough returns the cached value under key, or calls build and caches
// its result for ttl. Store failures fall back to build and are only logged;
// concurrent misses may each call build.
func ReadThrough[T any](ctx context.Context, store Store, key string, ttl time.Duration, build func(context.Context) (T, error)) (T, error) {
	var zero T

	raw, err := store.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		if uerr := json.Unmarshal(raw, &v); uerr == nil {
			metrics.NavCacheLookups.WithLabelValues(key, "hit").Inc()
			return v, nil
		}
		zap.L().Warn("discarding undecodable cache entry", zap.String("key", key))
		metrics.NavCacheLookups.WithLabelValues(key, "error").Inc()
	case errors.Is(err, ErrMiss):
		metrics.NavCacheLookups.WithLabelValues(key, "miss").Inc()
	default:
		zap.L().Warn("cache read failed", zap.String("key", key), zap.Error(err))
		metrics.NavCacheLookups.WithLabelValues(key, "error").Inc()
	}

	v, err := build(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to build %s: %w", key, err)
	}
	raw, err = json.Marshal(v)
	if err != nil {
		zap.L().Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		metrics.NavCacheLookups.WithLabelValues(key, "error").Inc()
		return v, nil
	}
	if err := store.Set(ctx, key, raw, ttl); err != nil {
		zap.L().Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}
