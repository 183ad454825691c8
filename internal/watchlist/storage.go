package watchlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/kabu-tools/stockdata/internal/models"
)

// ErrNotFound is returned when a symbol is not on the watchlist.
var ErrNotFound = errors.New("symbol not on watchlist")

const schema = `
CREATE TABLE IF NOT EXISTS watchlists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL UNIQUE,
	name TEXT,
	position INTEGER DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_watchlists_position ON watchlists(position);
`

// Storage persists a position-ordered watchlist in its own SQLite file
// under the cache directory.
type Storage struct {
	db  *sql.DB
	log *logrus.Logger
}

func Open(path string, log *logrus.Logger) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create watchlist directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open watchlist database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping watchlist database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize watchlist schema: %w", err)
	}

	log.WithField("path", path).Info("Watchlist database opened")
	return &Storage{db: db, log: log}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Add appends a symbol at the end of the list. Re-adding an existing
// symbol refreshes its display name but keeps its position.
func (s *Storage) Add(ctx context.Context, symbol, name string) error {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), -1) + 1 FROM watchlists").Scan(&next); err != nil {
		return fmt.Errorf("failed to compute position: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO watchlists (symbol, name, position, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (symbol) DO UPDATE SET
			name = excluded.name,
			updated_at = CURRENT_TIMESTAMP
	`, symbol, name, next)
	if err != nil {
		return fmt.Errorf("failed to add symbol: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit add: %w", err)
	}

	s.log.WithField("symbol", symbol).Info("Added to watchlist")
	return nil
}

// Remove deletes a symbol and compacts the positions after it.
func (s *Storage) Remove(ctx context.Context, symbol string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var position int
	err = tx.QueryRowContext(ctx,
		"SELECT position FROM watchlists WHERE symbol = ?", symbol).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up symbol: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM watchlists WHERE symbol = ?", symbol); err != nil {
		return fmt.Errorf("failed to remove symbol: %w", err)
	}

	// Close the gap left by the removed entry.
	if _, err := tx.ExecContext(ctx, `
		UPDATE watchlists
		SET position = position - 1, updated_at = CURRENT_TIMESTAMP
		WHERE position > ?
	`, position); err != nil {
		return fmt.Errorf("failed to compact positions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit remove: %w", err)
	}

	s.log.WithField("symbol", symbol).Info("Removed from watchlist")
	return nil
}

// Symbols returns the watched symbols in position order.
func (s *Storage) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT symbol FROM watchlists ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// Items returns the full watchlist detail in position order.
func (s *Storage) Items(ctx context.Context) ([]models.WatchlistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, COALESCE(name, ''), position, created_at, updated_at
		FROM watchlists ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var items []models.WatchlistItem
	for rows.Next() {
		var item models.WatchlistItem
		if err := rows.Scan(&item.Symbol, &item.Name, &item.Position, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Reorder rewrites the positions to match the given symbol order. Symbols
// missing from the list are ignored.
func (s *Storage) Reorder(ctx context.Context, symbols []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for position, symbol := range symbols {
		if _, err := tx.ExecContext(ctx, `
			UPDATE watchlists
			SET position = ?, updated_at = CURRENT_TIMESTAMP
			WHERE symbol = ?
		`, position, symbol); err != nil {
			return fmt.Errorf("failed to reorder %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reorder: %w", err)
	}

	s.log.WithField("count", len(symbols)).Info("Watchlist reordered")
	return nil
}

// Clear removes every entry.
func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM watchlists"); err != nil {
		return fmt.Errorf("failed to clear watchlist: %w", err)
	}
	s.log.Info("Watchlist cleared")
	return nil
}

// Stats summarizes the stored watchlist.
func (s *Storage) Stats(ctx context.Context) (models.WatchlistStats, error) {
	var stats models.WatchlistStats
	var latest sql.NullString

	// MAX() strips the column type, so the driver returns the raw
	// CURRENT_TIMESTAMP text.
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MAX(created_at) FROM watchlists").Scan(&stats.TotalSymbols, &latest)
	if err != nil {
		return models.WatchlistStats{}, fmt.Errorf("failed to read watchlist stats: %w", err)
	}
	if latest.Valid {
		if stats.LatestAdded, err = time.Parse("2006-01-02 15:04:05", latest.String); err != nil {
			return models.WatchlistStats{}, fmt.Errorf("invalid created_at %q in watchlist: %w", latest.String, err)
		}
	}
	return stats, nil
}
