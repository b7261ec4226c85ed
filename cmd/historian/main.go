// Command historian moves the match journal from Redis into PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/parlor/internal/cache"
	"github.com/jason-s-yu/parlor/internal/config"
	"github.com/jason-s-yu/parlor/internal/database"
	"github.com/jason-s-yu/parlor/internal/historian"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.ConnectDB(ctx, cfg.PostgresURL()); err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer database.DB.Close()
	if err := database.Migrate(ctx); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	svc := historian.New(rdb, historian.PostgresStore{Pool: database.DB}, historian.Options{
		Queue:      cfg.HistorianQueueName,
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: cfg.HistorianFlushDelay(),
		Inactivity: cfg.MatchInactivityTimeout(),
	}, logger)
	if err := svc.Run(ctx); err != nil {
		logger.Errorf("historian exited: %v", err)
		os.Exit(1)
	}
	logger.Info("Historian shutdown complete.")
}
