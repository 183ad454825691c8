package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/kabu-tools/stockdata/internal/api"
	"github.com/kabu-tools/stockdata/internal/cache"
	"github.com/kabu-tools/stockdata/internal/config"
	"github.com/kabu-tools/stockdata/internal/database"
	"github.com/kabu-tools/stockdata/internal/logging"
	"github.com/kabu-tools/stockdata/internal/ratelimit"
	"github.com/kabu-tools/stockdata/internal/services"
	"github.com/kabu-tools/stockdata/internal/upstream"
	"github.com/kabu-tools/stockdata/internal/watchlist"
)

func main() {
	// .env is optional; real deployments configure through the environment
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.Environment)

	// Cache database
	dbPath := filepath.Join(cfg.Collector.CacheDir, "stock_data.db")
	db, err := database.Open(dbPath)
	if err != nil {
		logger.Fatalf("Failed to open cache database: %v", err)
	}
	defer db.Close()

	// Watchlist database
	wl, err := watchlist.Open(filepath.Join(cfg.Collector.CacheDir, "watchlist.db"), logger)
	if err != nil {
		logger.Fatalf("Failed to open watchlist database: %v", err)
	}
	defer wl.Close()

	// Core wiring: store, limiter, upstream client, collector facade
	store := cache.NewStore(db, logger)
	limiter := ratelimit.New(cfg.Collector.MinRequestInterval)
	fetcher := upstream.NewClient(cfg.Upstream, logger)
	collector := services.NewCollector(store, fetcher, limiter, cfg.Collector, logger)

	// Background maintenance
	cleanup := services.NewCleanupService(store, logger)
	cleanup.Start(cfg.Cleanup)
	defer cleanup.Stop()

	backups := services.NewBackupService(cfg.Backup, dbPath, db.SQL, logger)
	backups.Start()
	defer backups.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	api.SetupRoutes(router, api.Deps{
		DB:        db,
		Collector: collector,
		Cache:     collector,
		Watchlist: wl,
		Backups:   backups,
		Defaults:  cfg.Collector,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
