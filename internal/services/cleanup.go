package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kabu-tools/stockdata/internal/config"
)

// CleanupService periodically purges cache rows past the retention window.
type CleanupService struct {
	store  BarStore
	log    *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCleanupService(store BarStore, log *logrus.Logger) *CleanupService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupService{
		store:  store,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs an initial cleanup and then one per configured interval until
// Stop is called.
func (c *CleanupService) Start(cfg config.CleanupConfig) {
	c.log.WithFields(logrus.Fields{
		"retention_days":   cfg.RetentionDays,
		"interval_minutes": cfg.IntervalMinutes,
	}).Info("Starting cleanup service")

	go func() {
		if err := c.RunCleanup(cfg); err != nil {
			c.log.WithError(err).Error("Initial cleanup failed")
		}
	}()

	ticker := time.NewTicker(time.Duration(cfg.IntervalMinutes) * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if err := c.RunCleanup(cfg); err != nil {
					c.log.WithError(err).Error("Cleanup failed")
				}
			}
		}
	}()
}

// Stop stops the periodic cleanup.
func (c *CleanupService) Stop() {
	c.log.Info("Stopping cleanup service")
	c.cancel()
}

// RunCleanup performs one cleanup pass over all symbols.
func (c *CleanupService) RunCleanup(cfg config.CleanupConfig) error {
	olderThan := time.Duration(cfg.RetentionDays) * 24 * time.Hour

	removed, err := c.store.Purge(c.ctx, "", olderThan)
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}

	if removed > 0 {
		c.log.WithFields(logrus.Fields{
			"rows":           removed,
			"retention_days": cfg.RetentionDays,
		}).Info("Cleaned up old cache rows")
	}
	return nil
}
