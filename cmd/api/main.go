package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/loot-list/internal/config"
	"github.com/jwebster45206/loot-list/internal/editor"
	"github.com/jwebster45206/loot-list/internal/handlers"
	"github.com/jwebster45206/loot-list/internal/logger"
	"github.com/jwebster45206/loot-list/internal/middleware"
	"github.com/jwebster45206/loot-list/internal/services/events"
	"github.com/jwebster45206/loot-list/internal/services/queue"
	"github.com/jwebster45206/loot-list/internal/storage"
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

	log.Info("Starting Loot List API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"data_dir", cfg.DataDir,
		"flag_namespace", cfg.FlagNamespace,
		"session_idle", cfg.SessionIdle)

	store := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()

	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	if _, err := store.SeedActors(storageCtx); err != nil {
		log.Error("Failed to seed actors", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	lootCfg := cfg.Loot()
	engine := grant.NewEngine(lootCfg, document.NewResolver(store), dice.NewEvaluator(cfg.DiceSeed), store, log)
	if cfg.EventsEnabled {
		events.NewBroadcaster(store.Client(), log).Register(engine)
		log.Info("Grant events enabled")
	}
	sessions := editor.NewService(store, lootCfg, engine, log)
	expiryCtx, stopExpiry := context.WithCancel(context.Background())
	defer stopExpiry()
	go sessions.RunExpiry(expiryCtx, time.Minute, cfg.SessionIdle)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, sessions, log)
	mux.Handle("/health", healthHandler)

	actorHandler := handlers.NewActorHandler(store, sessions, lootCfg, log)
	mux.Handle("/v1/actors", actorHandler)
	mux.Handle("/v1/actors/", actorHandler)

	sessionHandler := handlers.NewSessionHandler(sessions, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	grantsHandler := handlers.NewGrantsHandler(queue.NewGrantQueue(store.Client()), store, log)
	mux.Handle("/v1/grants", grantsHandler)
	mux.Handle("/v1/grants/", grantsHandler)

	if cfg.EventsEnabled {
		mux.Handle("/v1/events/", handlers.NewEventsHandler(store.Client(), log))
	}

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: the events stream stays open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
}
