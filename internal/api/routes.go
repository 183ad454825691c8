package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kabu-tools/stockdata/internal/api/handlers"
	"github.com/kabu-tools/stockdata/internal/config"
	"github.com/kabu-tools/stockdata/internal/database"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
}

// Deps carries everything the route tree needs.
type Deps struct {
	DB        *database.DB
	Collector handlers.MarketCollector
	Cache     handlers.CacheMaintainer
	Watchlist handlers.WatchlistStore
	Backups   handlers.BackupRunner
	Defaults  config.CollectorConfig
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(RequestID())

	router.GET("/health", healthCheck(deps.DB))

	marketHandler := handlers.NewMarketHandler(deps.Collector, deps.Defaults)
	cacheHandler := handlers.NewCacheHandler(deps.Cache)
	watchlistHandler := handlers.NewWatchlistHandler(deps.Watchlist)
	backupHandler := handlers.NewBackupHandler(deps.Backups)

	v1 := router.Group("/api/v1")
	{
		market := v1.Group("/market")
		{
			market.GET("/bars", marketHandler.GetBars)
			market.POST("/bars/batch", marketHandler.GetBarsBatch)
		}

		cache := v1.Group("/cache")
		{
			cache.GET("/stats", cacheHandler.GetStats)
			cache.DELETE("", cacheHandler.Clear)
		}

		watchlist := v1.Group("/watchlist")
		{
			watchlist.GET("", watchlistHandler.List)
			watchlist.POST("", watchlistHandler.Add)
			watchlist.DELETE("/:symbol", watchlistHandler.Remove)
			watchlist.PUT("/reorder", watchlistHandler.Reorder)
			watchlist.GET("/stats", watchlistHandler.GetStats)
		}

		backups := v1.Group("/backups")
		{
			backups.POST("", backupHandler.Create)
			backups.GET("", backupHandler.List)
		}
	}
}

func healthCheck(db *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status:    "ok",
			Timestamp: time.Now(),
			Database:  "ok",
		}

		status := http.StatusOK
		if db != nil {
			if err := db.HealthCheck(c.Request.Context()); err != nil {
				response.Status = "degraded"
				response.Database = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}

		c.JSON(status, response)
	}
}
