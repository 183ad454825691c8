package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kabu-tools/stockdata/internal/config"
	"github.com/kabu-tools/stockdata/internal/models"
)

// MarketCollector is the collector surface the market endpoints depend on.
type MarketCollector interface {
	Get(ctx context.Context, symbol, interval, period string, useCache bool, ttl time.Duration) ([]models.Bar, error)
	GetMany(ctx context.Context, symbols []string, interval, period string, useCache bool) map[string][]models.Bar
	DefaultTTL() time.Duration
}

// MarketHandler serves bar retrieval endpoints.
type MarketHandler struct {
	collector MarketCollector
	defaults  config.CollectorConfig
}

func NewMarketHandler(collector MarketCollector, defaults config.CollectorConfig) *MarketHandler {
	return &MarketHandler{collector: collector, defaults: defaults}
}

// GetBars returns bars for a single symbol, served from the cache when
// fresh.
func (h *MarketHandler) GetBars(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "symbol parameter is required",
		})
		return
	}

	interval := c.DefaultQuery("interval", h.defaults.DefaultInterval)
	period := c.DefaultQuery("period", h.defaults.DefaultPeriod)

	useCache := true
	if v := c.Query("use_cache"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "use_cache must be a boolean",
			})
			return
		}
		useCache = parsed
	}

	ttl := h.collector.DefaultTTL()
	if v := c.Query("ttl_hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "ttl_hours must be a non-negative integer",
			})
			return
		}
		ttl = time.Duration(hours) * time.Hour
	}

	bars, err := h.collector.Get(c.Request.Context(), symbol, interval, period, useCache, ttl)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"symbol":  symbol,
		"count":   len(bars),
		"data":    bars,
	})
}

type batchRequest struct {
	Symbols  []string `json:"symbols" binding:"required,min=1"`
	Interval string   `json:"interval"`
	Period   string   `json:"period"`
	UseCache *bool    `json:"use_cache"`
}

// GetBarsBatch fetches bars for several symbols in parallel. Symbols whose
// fetch failed are simply absent from the response data.
func (h *MarketHandler) GetBarsBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "symbols list is required",
		})
		return
	}

	if req.Interval == "" {
		req.Interval = h.defaults.DefaultInterval
	}
	if req.Period == "" {
		req.Period = h.defaults.DefaultPeriod
	}
	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	results := h.collector.GetMany(c.Request.Context(), req.Symbols, req.Interval, req.Period, useCache)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"requested": len(req.Symbols),
		"fetched":   len(results),
		"data":      results,
	})
}
