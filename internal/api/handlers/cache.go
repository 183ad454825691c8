package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kabu-tools/stockdata/internal/models"
)

// CacheMaintainer is the maintenance surface exposed upward to tooling.
type CacheMaintainer interface {
	ClearCache(ctx context.Context, symbol string, olderThan time.Duration) (int64, error)
	CacheStats(ctx context.Context) (models.CacheStats, error)
}

// CacheHandler serves cache maintenance endpoints.
type CacheHandler struct {
	maintainer CacheMaintainer
}

func NewCacheHandler(maintainer CacheMaintainer) *CacheHandler {
	return &CacheHandler{maintainer: maintainer}
}

// GetStats returns the aggregate cache statistics.
func (h *CacheHandler) GetStats(c *gin.Context) {
	stats, err := h.maintainer.CacheStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to get cache stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// Clear purges cached rows older than older_than_days (default 30),
// optionally scoped to one symbol.
func (h *CacheHandler) Clear(c *gin.Context) {
	days := 30
	if v := c.Query("older_than_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "older_than_days must be a non-negative integer",
			})
			return
		}
		days = parsed
	}

	removed, err := h.maintainer.ClearCache(c.Request.Context(), c.Query("symbol"), time.Duration(days)*24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to clear cache: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"removed": removed,
	})
}
