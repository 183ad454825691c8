package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kabu-tools/stockdata/internal/models"
	"github.com/kabu-tools/stockdata/internal/watchlist"
)

// WatchlistStore is the watchlist surface the handlers depend on.
type WatchlistStore interface {
	Add(ctx context.Context, symbol, name string) error
	Remove(ctx context.Context, symbol string) error
	Items(ctx context.Context) ([]models.WatchlistItem, error)
	Reorder(ctx context.Context, symbols []string) error
	Stats(ctx context.Context) (models.WatchlistStats, error)
}

// WatchlistHandler serves watchlist CRUD endpoints.
type WatchlistHandler struct {
	store WatchlistStore
}

func NewWatchlistHandler(store WatchlistStore) *WatchlistHandler {
	return &WatchlistHandler{store: store}
}

func (h *WatchlistHandler) List(c *gin.Context) {
	items, err := h.store.Items(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": items})
}

type addRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Name   string `json:"name"`
}

func (h *WatchlistHandler) Add(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "symbol is required"})
		return
	}

	if err := h.store.Add(c.Request.Context(), req.Symbol, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "symbol": req.Symbol})
}

func (h *WatchlistHandler) Remove(c *gin.Context) {
	symbol := c.Param("symbol")

	err := h.store.Remove(c.Request.Context(), symbol)
	if errors.Is(err, watchlist.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "symbol not on watchlist"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "symbol": symbol})
}

type reorderRequest struct {
	Symbols []string `json:"symbols" binding:"required,min=1"`
}

func (h *WatchlistHandler) Reorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "symbols list is required"})
		return
	}

	if err := h.store.Reorder(c.Request.Context(), req.Symbols); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *WatchlistHandler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": stats})
}
