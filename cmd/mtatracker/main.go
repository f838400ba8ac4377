package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mtatracker-data/internal/api"
	"github.com/mtatracker-data/internal/common/config"
	"github.com/mtatracker-data/internal/common/db"
	"github.com/mtatracker-data/internal/common/logger"
	"github.com/mtatracker-data/internal/feed"
	"github.com/mtatracker-data/internal/ingest"
	"github.com/mtatracker-data/internal/query"
	"github.com/mtatracker-data/internal/reconcile"
	"github.com/mtatracker-data/internal/storage/postgres"
)

func main() {
	// .env is optional outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.New(
		logger.ParseLevel(cfg.Logging.Level),
		logger.ConsoleWriter(),
		logger.FileWriter(cfg.Logging.FilePath),
	)

	log.Info("MTA Tracker Data Service starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"feed_groups", len(cfg.Feeds.Groups),
		"cycle_interval", cfg.Feeds.CycleInterval,
	)

	database, err := db.New(cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	store := postgres.New(database, log)

	pipeline := ingest.NewPipeline(
		cfg.Feeds.Groups,
		feed.NewFetcher(cfg.Feeds.FetchTimeout, log),
		feed.NewDecoder(log),
		reconcile.NewRealtimeReconciler(store, log),
		reconcile.NewAlertReconciler(store, log),
		log,
	)

	server := api.NewServer(
		query.NewDepartureResolver(store),
		query.NewAlertMatcher(store),
		store,
		store,
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runIngestLoop(ctx, pipeline, cfg.Feeds.CycleInterval, log)
	}()

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server.Router(),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	wg.Wait()
	log.Info("MTA Tracker Data Service stopped")
}

// runIngestLoop triggers a cycle immediately and then on every tick. The
// pipeline itself has no timer; failures are logged and the next tick
// retries from scratch.
func runIngestLoop(ctx context.Context, pipeline *ingest.Pipeline, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := pipeline.RunCycle(ctx); err != nil {
		log.Error("Ingestion cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Ingest loop stopped")
			return
		case <-ticker.C:
			if err := pipeline.RunCycle(ctx); err != nil {
				log.Error("Ingestion cycle failed", "error", err)
			}
		}
	}
}
