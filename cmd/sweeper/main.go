package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/swiftride/ledger/internal/config"
	"github.com/swiftride/ledger/internal/hold"
	"github.com/swiftride/ledger/internal/infra"
	"github.com/swiftride/ledger/internal/ledger"
	"github.com/swiftride/ledger/internal/logging"
	"github.com/swiftride/ledger/internal/notification"
	"github.com/swiftride/ledger/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis is optional: without it the sweeper runs without a leader lease.
	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	store := ledger.NewPostgresStore(db)
	sw := sweeper.New(sweeper.Options{
		Store:     store,
		Holds:     hold.NewService(store),
		Cache:     cache,
		Notifier:  notification.NewLoggerNotifier(logger),
		Logger:    logger,
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
	})

	logger.Info("sweeper started", "interval", cfg.SweepInterval.String(), "batch_size", cfg.SweepBatchSize)

	if err := sw.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sweeper error", "error", err)
		os.Exit(1)
	}

	logger.Info("sweeper exited cleanly")
}
