package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kabu-tools/stockdata/internal/models"
)

// BackupRunner is the backup surface the handlers depend on.
type BackupRunner interface {
	Create(ctx context.Context, backupType string) (models.BackupInfo, error)
	List() ([]models.BackupInfo, error)
}

// BackupHandler serves backup management endpoints.
type BackupHandler struct {
	backups BackupRunner
}

func NewBackupHandler(backups BackupRunner) *BackupHandler {
	return &BackupHandler{backups: backups}
}

// Create takes a manual backup of the cache database.
func (h *BackupHandler) Create(c *gin.Context) {
	info, err := h.backups.Create(c.Request.Context(), "manual")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to create backup: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": info})
}

// List returns all backups, newest first.
func (h *BackupHandler) List(c *gin.Context) {
	backups, err := h.backups.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to list backups: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": backups})
}
