package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DB wraps the embedded SQLite database holding the bar cache.
type DB struct {
	SQL  *sql.DB
	Path string
}

const barSchema = `
CREATE TABLE IF NOT EXISTS stock_data (
	symbol TEXT,
	interval TEXT,
	timestamp TEXT,
	open REAL,
	high REAL,
	low REAL,
	close REAL,
	volume INTEGER,
	created_at TEXT,
	PRIMARY KEY (symbol, interval, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_symbol_interval_time
ON stock_data(symbol, interval, timestamp);
`

// Open opens (creating if necessary) the SQLite cache database at path and
// ensures the bar schema exists. The schema matches the historical cache
// file layout, so databases written by earlier versions remain readable.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		logrus.WithError(err).Warn("Failed to set WAL mode")
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		logrus.WithError(err).Warn("Failed to set synchronous mode")
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		logrus.WithError(err).Warn("Failed to set busy timeout")
	}

	if _, err := db.Exec(barSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logrus.WithField("path", path).Info("Cache database opened")

	return &DB{SQL: db, Path: path}, nil
}

func (d *DB) Close() error {
	if d.SQL != nil {
		return d.SQL.Close()
	}
	return nil
}

func (d *DB) HealthCheck(ctx context.Context) error {
	return d.SQL.PingContext(ctx)
}
