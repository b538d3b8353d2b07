package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/loot-list/internal/config"
	"github.com/jwebster45206/loot-list/internal/logger"
	"github.com/jwebster45206/loot-list/internal/services/events"
	"github.com/jwebster45206/loot-list/internal/services/queue"
	"github.com/jwebster45206/loot-list/internal/storage"
	"github.com/jwebster45206/loot-list/internal/worker"
	"github.com/jwebster45206/loot-list/pkg/dice"
	"github.com/jwebster45206/loot-list/pkg/document"
	"github.com/jwebster45206/loot-list/pkg/grant"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg)

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("Starting Loot List Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"data_dir", cfg.DataDir)

	store := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage connection", "error", err)
		}
	}()
	log.Info("Storage service initialized successfully")

	lootCfg := cfg.Loot()
	engine := grant.NewEngine(lootCfg, document.NewResolver(store), dice.NewEvaluator(cfg.DiceSeed), store, log)

	var broadcaster *events.Broadcaster
	if cfg.EventsEnabled {
		broadcaster = events.NewBroadcaster(store.Client(), log)
		broadcaster.Register(engine)
		log.Info("Grant events enabled")
	}

	processor := worker.NewGrantProcessor(store, lootCfg, engine, log)
	grantQueue := queue.NewGrantQueue(store.Client())
	w := worker.New(grantQueue, processor, broadcaster, store.Client(), log, os.Getenv("WORKER_ID"))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for grant requests...")

	<-quit
	log.Info("Worker shutdown signal received")
	w.Stop()

	// Give worker time to finish current request
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("Worker did not stop in time")
	}

	log.Info("Worker exited")
}
