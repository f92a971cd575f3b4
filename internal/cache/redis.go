package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// How long ConnectRedis waits for the server to come up.
const connectTimeout = 20 * time.Second

// ConnectRedis opens a client and polls PING with backoff until Redis answers,
// so workers started alongside Redis in compose do not crash on boot.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	delay := 250 * time.Millisecond
	for {
		err := rdb.Ping(ctx).Err()
		if err == nil {
			break
		}
		zap.L().Warn("redis not ready", zap.String("addr", addr), zap.Duration("retry_in", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
		case <-time.After(delay):
		}
		if delay < 4*time.Second {
			delay *= 2
		}
	}

	zap.L().Info("connected to Redis", zap.String("addr", addr), zap.Int("db", db))
	return rdb, nil
}

func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	return nil
}
