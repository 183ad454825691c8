package services

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kabu-tools/stockdata/internal/config"
	"github.com/kabu-tools/stockdata/internal/models"
)

const backupTimeFormat = "20060102_150405"

// BackupService snapshots the cache database. Backups use SQLite's
// VACUUM INTO so a consistent copy is taken even while the cache is being
// written, with a plain file copy as fallback. Old backups beyond the
// retention count are pruned after every successful create.
type BackupService struct {
	cfg    config.BackupConfig
	dbPath string
	db     *sql.DB
	log    *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBackupService(cfg config.BackupConfig, dbPath string, db *sql.DB, log *logrus.Logger) *BackupService {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackupService{
		cfg:    cfg,
		dbPath: dbPath,
		db:     db,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start schedules automatic backups on the configured interval.
func (b *BackupService) Start() {
	if !b.cfg.Enabled {
		b.log.Debug("Backups disabled")
		return
	}

	b.log.WithFields(logrus.Fields{
		"dir":            b.cfg.Dir,
		"interval_hours": b.cfg.IntervalHours,
	}).Info("Starting backup service")

	ticker := time.NewTicker(time.Duration(b.cfg.IntervalHours) * time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-ticker.C:
				if _, err := b.Create(b.ctx, "auto"); err != nil {
					b.log.WithError(err).Error("Automatic backup failed")
				}
			}
		}
	}()
}

func (b *BackupService) Stop() {
	b.cancel()
}

// Create takes one backup of the cache database. backupType tags the file
// name ("auto" or "manual").
func (b *BackupService) Create(ctx context.Context, backupType string) (models.BackupInfo, error) {
	if !b.cfg.Enabled {
		return models.BackupInfo{}, fmt.Errorf("backups are disabled")
	}
	if _, err := os.Stat(b.dbPath); err != nil {
		return models.BackupInfo{}, fmt.Errorf("cache database not found: %w", err)
	}
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return models.BackupInfo{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(b.dbPath), filepath.Ext(b.dbPath))
	base := fmt.Sprintf("%s_%s_%s", stem, backupType, time.Now().Format(backupTimeFormat))

	// Timestamps have second resolution; a same-second create gets a
	// numeric suffix instead of overwriting the earlier backup.
	name := base + ".db"
	for seq := 2; fileExists(filepath.Join(b.cfg.Dir, name)) || fileExists(filepath.Join(b.cfg.Dir, name+".gz")); seq++ {
		name = fmt.Sprintf("%s_%d.db", base, seq)
	}
	dest := filepath.Join(b.cfg.Dir, name)

	if err := b.snapshot(ctx, dest); err != nil {
		return models.BackupInfo{}, err
	}

	if b.cfg.Compress {
		compressed, err := compressFile(dest)
		if err != nil {
			b.log.WithError(err).Warn("Backup compression failed, keeping uncompressed copy")
		} else {
			if err := os.Remove(dest); err != nil {
				b.log.WithError(err).Warn("Failed to remove uncompressed backup")
			}
			dest = compressed
		}
	}

	info, err := os.Stat(dest)
	if err != nil {
		return models.BackupInfo{}, fmt.Errorf("failed to stat backup: %w", err)
	}

	backup := models.BackupInfo{
		FilePath:     dest,
		CreatedAt:    info.ModTime(),
		FileSize:     info.Size(),
		IsCompressed: strings.HasSuffix(dest, ".gz"),
		BackupType:   backupType,
	}

	b.log.WithFields(logrus.Fields{
		"path": dest,
		"size": backup.FileSize,
		"type": backupType,
	}).Info("Backup created")

	if err := b.prune(); err != nil {
		b.log.WithError(err).Warn("Backup retention pruning failed")
	}

	return backup, nil
}

// snapshot writes a consistent copy of the live database to dest.
func (b *BackupService) snapshot(ctx context.Context, dest string) error {
	// VACUUM INTO does not accept bound parameters in all builds, so the
	// path is quoted inline.
	quoted := strings.ReplaceAll(dest, "'", "''")
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		b.log.WithError(err).Warn("VACUUM INTO failed, falling back to file copy")
		if copyErr := copyFile(b.dbPath, dest); copyErr != nil {
			return fmt.Errorf("backup failed: %w", copyErr)
		}
	}
	return nil
}

// List returns all backups in the backup directory, newest first.
func (b *BackupService) List() ([]models.BackupInfo, error) {
	entries, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []models.BackupInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".db") && !strings.HasSuffix(name, ".db.gz") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, models.BackupInfo{
			FilePath:     filepath.Join(b.cfg.Dir, name),
			CreatedAt:    info.ModTime(),
			FileSize:     info.Size(),
			IsCompressed: strings.HasSuffix(name, ".gz"),
			BackupType:   backupTypeFromName(name),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Restore copies a backup over the cache database path. The database must
// not be open while restoring; callers are expected to run this before
// opening the cache or after closing it.
func (b *BackupService) Restore(backupPath string) error {
	src := backupPath
	if strings.HasSuffix(backupPath, ".gz") {
		decompressed, err := decompressFile(backupPath)
		if err != nil {
			return fmt.Errorf("failed to decompress backup: %w", err)
		}
		defer os.Remove(decompressed)
		src = decompressed
	}

	if err := copyFile(src, b.dbPath); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	b.log.WithField("backup", backupPath).Info("Backup restored")
	return nil
}

// prune removes the oldest backups beyond the retention count.
func (b *BackupService) prune() error {
	backups, err := b.List()
	if err != nil {
		return err
	}
	if len(backups) <= b.cfg.RetentionCount {
		return nil
	}

	for _, old := range backups[b.cfg.RetentionCount:] {
		if err := os.Remove(old.FilePath); err != nil {
			b.log.WithError(err).WithField("path", old.FilePath).Warn("Failed to remove old backup")
			continue
		}
		b.log.WithField("path", old.FilePath).Debug("Pruned old backup")
	}
	return nil
}

func backupTypeFromName(name string) string {
	for _, t := range []string{"auto", "manual"} {
		if strings.Contains(name, "_"+t+"_") {
			return t
		}
	}
	return "manual"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func compressFile(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dest := path + ".gz"
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return dest, nil
}

func decompressFile(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return "", err
	}
	defer gz.Close()

	dest := strings.TrimSuffix(path, ".gz") + ".restore"
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, gz); err != nil {
		return "", err
	}
	return dest, nil
}
