package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/parlor/internal/auth"
	"github.com/jason-s-yu/parlor/internal/cache"
	"github.com/jason-s-yu/parlor/internal/config"
	"github.com/jason-s-yu/parlor/internal/database"
	_ "github.com/jason-s-yu/parlor/internal/game/guess"
	"github.com/jason-s-yu/parlor/internal/handlers"
	"github.com/jason-s-yu/parlor/internal/match"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ttl, _ := cfg.TokenExpiry()
	if err := auth.Configure(cfg); err != nil {
		logger.Fatalf("auth: %v", err)
	}

	if err := database.ConnectDB(ctx, cfg.PostgresURL()); err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer database.DB.Close()
	if err := database.Migrate(ctx); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	hub := handlers.NewHub(logger)
	mcfg := match.Config{
		Messenger: hub,
		Recorder:  database.NewRecorder(database.DB),
		Logger:    logger,
		Options: match.Options{
			AlertGranularity: cfg.AlertGranularitySec,
			MaxMultiplier:    cfg.MaxMultiplier,
		},
	}
	if cfg.JournalEnabled {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		journal := cache.NewJournal(rdb, cfg.HistorianQueueName, logger)
		defer journal.Close()
		mcfg.Journal = journal
	}

	srv := &handlers.Server{
		Matches:  match.NewManager(mcfg),
		Hub:      hub,
		Users:    handlers.DatabaseUsers{},
		Log:      logger,
		TokenTTL: ttl,
	}
	mux := http.NewServeMux()
	srv.Routes(mux)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", server.Addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server exited: %v", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	for _, m := range srv.Matches.List() {
		m.Terminate("The server is shutting down.")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}
