package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cesargomez89/chordbook/internal/app"
	"github.com/cesargomez89/chordbook/internal/backup"
	"github.com/cesargomez89/chordbook/internal/bridge"
	"github.com/cesargomez89/chordbook/internal/config"
	"github.com/cesargomez89/chordbook/internal/httpapp"
	"github.com/cesargomez89/chordbook/internal/kv"
	"github.com/cesargomez89/chordbook/internal/logger"
	"github.com/cesargomez89/chordbook/internal/storage"
)

func main() {
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Initialize DB
	db, err := kv.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := kv.NewSQLiteStore(db, cfg.KVQuotaBytes)

	// Storage tiers
	primary := storage.NewPrimaryStore(store, appLogger)
	entities := storage.NewEntityStore(store, appLogger)
	recovery := storage.NewRecovery(primary, entities, store, appLogger)

	// Optional file mirror; without it the app runs in key-value-only mode
	var mirror *storage.FileMirror
	if cfg.MirrorEnabled {
		fileBridge, err := bridge.NewLocalBridge(cfg.StorageDir)
		if err != nil {
			appLogger.Warn("Failed to init file mirror, continuing without it", "error", err)
		} else {
			mirror = storage.NewFileMirror(fileBridge, cfg.MirrorOpDelay, cfg.MirrorMaxFiles, appLogger)
			mirror.Start()
			defer mirror.Stop()
		}
	}

	// Song service and auto-backup
	songs := app.NewSongService(store, primary, entities, mirror, recovery, app.Options{
		AutoSaveDelay:     cfg.AutoSaveDelay,
		MaxSaveFailures:   cfg.MaxSaveFailures,
		RateLimitInterval: cfg.RateLimitInterval,
		RateLimitQueueMax: cfg.RateLimitQueueMax,
	}, appLogger)
	songs.LoadInitial()
	defer songs.Stop()

	backups := backup.NewService(songs, store, cfg.AutoBackupInterval, appLogger)
	backups.Start()
	defer backups.Stop()

	// Initialize Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := httpapp.NewHandler(songs, backups, appLogger)
	h.RegisterRoutes(r)

	// Start Server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
