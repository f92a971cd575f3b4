package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/cache"
	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/db"
	"github.com/returnordie/til-i-allt-sub001/internal/logger"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
)

func main() {
	root := &cobra.Command{
		Use:           "marketplace",
		Short:         "Classifieds marketplace backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSeedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// infra holds the connections every command needs.
type infra struct {
	cfg   *config.Config
	mongo *mongo.Client
	db    *mongo.Database
	rdb   *redis.Client
}

// connect loads config, installs the logger and opens MongoDB and Redis.
func connect(ctx context.Context, runMode string) (*infra, error) {
	cfg, err := config.Load(runMode)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, err := logger.Install(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev, File: cfg.LogFile}); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	client, database, err := db.ConnectDB(ctx, cfg.MongoURI, cfg.MongoDbName, cfg.AppName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := services.EnsureIndexes(ctx, database); err != nil {
		_ = db.DisconnectDB(client)
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		_ = db.DisconnectDB(client)
		return nil, err
	}
	return &infra{cfg: cfg, mongo: client, db: database, rdb: rdb}, nil
}

func (in *infra) close() {
	if err := cache.DisconnectRedis(in.rdb); err != nil {
		zap.L().Warn("error disconnecting from Redis", zap.Error(err))
	}
	if err := db.DisconnectDB(in.mongo); err != nil {
		zap.L().Warn("error disconnecting from MongoDB", zap.Error(err))
	}
	_ = zap.L().Sync()
}
