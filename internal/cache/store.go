package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kabu-tools/stockdata/internal/database"
	"github.com/kabu-tools/stockdata/internal/models"
)

// timeLayout is how timestamps are stored in the cache file. Times are
// normalized to UTC before formatting so lexicographic order on the TEXT
// column matches chronological order.
const timeLayout = time.RFC3339

// Store persists OHLCV bars in the embedded SQLite cache. Every operation
// runs in its own short-lived transaction or query; no locks are held
// across calls.
type Store struct {
	db  *database.DB
	log *logrus.Logger
}

func NewStore(db *database.DB, log *logrus.Logger) *Store {
	return &Store{db: db, log: log}
}

// Upsert writes all bars, replacing any existing row with the same
// (symbol, interval, timestamp) key. Replays of overlapping data converge
// to the last writer's values, including created_at.
func (s *Store) Upsert(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stock_data (symbol, interval, timestamp, open, high, low, close, volume, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, interval, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			created_at = excluded.created_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx,
			b.Symbol, b.Interval, b.Timestamp.UTC().Format(timeLayout),
			b.Open, b.High, b.Low, b.Close, b.Volume,
			b.CreatedAt.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert bar %s/%s: %w", b.Symbol, b.Interval, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"symbol": bars[0].Symbol,
		"rows":   len(bars),
	}).Debug("Cache upsert complete")

	return nil
}

// Load returns bars for the key ordered by ascending timestamp, optionally
// bounded by [start, end]. No matching rows yields an empty slice, not an
// error.
func (s *Store) Load(ctx context.Context, symbol, interval string, start, end *time.Time) ([]models.Bar, error) {
	query := `
		SELECT symbol, interval, timestamp, open, high, low, close, volume, created_at
		FROM stock_data
		WHERE symbol = ? AND interval = ?
	`
	args := []any{symbol, interval}

	if start != nil {
		query += " AND timestamp >= ?"
		args = append(args, start.UTC().Format(timeLayout))
	}
	if end != nil {
		query += " AND timestamp <= ?"
		args = append(args, end.UTC().Format(timeLayout))
	}
	query += " ORDER BY timestamp"

	rows, err := s.db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		var ts, createdAt string
		if err := rows.Scan(&b.Symbol, &b.Interval, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		if b.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("invalid timestamp %q in cache: %w", ts, err)
		}
		if b.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at %q in cache: %w", createdAt, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cache rows: %w", err)
	}

	return bars, nil
}

// IsFresh reports whether the most recently ingested row for the key is
// younger than ttl. A missing key is never fresh.
func (s *Store) IsFresh(ctx context.Context, symbol, interval string, ttl time.Duration) (bool, error) {
	var latest sql.NullString
	err := s.db.SQL.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM stock_data
		WHERE symbol = ? AND interval = ?
	`, symbol, interval).Scan(&latest)
	if err != nil {
		return false, fmt.Errorf("failed to check freshness: %w", err)
	}
	if !latest.Valid {
		return false, nil
	}

	createdAt, err := time.Parse(timeLayout, latest.String)
	if err != nil {
		return false, fmt.Errorf("invalid created_at %q in cache: %w", latest.String, err)
	}

	return time.Since(createdAt) < ttl, nil
}

// Purge deletes rows whose created_at is older than the cutoff, scoped to
// symbol when non-empty. Returns the number of rows removed.
func (s *Store) Purge(ctx context.Context, symbol string, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(timeLayout)

	var (
		res sql.Result
		err error
	)
	if symbol != "" {
		res, err = s.db.SQL.ExecContext(ctx,
			"DELETE FROM stock_data WHERE symbol = ? AND created_at < ?", symbol, cutoff)
	} else {
		res, err = s.db.SQL.ExecContext(ctx,
			"DELETE FROM stock_data WHERE created_at < ?", cutoff)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged rows: %w", err)
	}

	if removed > 0 {
		s.log.WithFields(logrus.Fields{
			"symbol": symbol,
			"rows":   removed,
		}).Info("Purged stale cache rows")
	}

	return removed, nil
}

// Stats computes the aggregate cache view: row count, distinct symbols,
// newest created_at and the on-disk file size.
func (s *Store) Stats(ctx context.Context) (models.CacheStats, error) {
	var stats models.CacheStats
	var latest sql.NullString

	err := s.db.SQL.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT symbol), MAX(created_at) FROM stock_data
	`).Scan(&stats.TotalRecords, &stats.UniqueSymbols, &latest)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("failed to read cache stats: %w", err)
	}

	if latest.Valid {
		if stats.LatestUpdate, err = time.Parse(timeLayout, latest.String); err != nil {
			return models.CacheStats{}, fmt.Errorf("invalid created_at %q in cache: %w", latest.String, err)
		}
	}

	if info, err := os.Stat(s.db.Path); err == nil {
		stats.FileSizeBytes = info.Size()
	}

	return stats, nil
}
