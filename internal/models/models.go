package models

import "time"

// Bar is one OHLCV candle for a symbol at a given interval. Timestamps are
// stored and compared in UTC.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	CreatedAt time.Time `json:"created_at"`
}

// CacheStats summarizes the cache database contents.
type CacheStats struct {
	TotalRecords  int64     `json:"total_records"`
	UniqueSymbols int       `json:"unique_symbols"`
	LatestUpdate  time.Time `json:"latest_update"`
	FileSizeBytes int64     `json:"file_size_bytes"`
}

// WatchlistItem is one entry of the position-ordered watchlist.
type WatchlistItem struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WatchlistStats summarizes the stored watchlist.
type WatchlistStats struct {
	TotalSymbols int       `json:"total_symbols"`
	LatestAdded  time.Time `json:"latest_added"`
}

// BackupInfo describes one backup file on disk.
type BackupInfo struct {
	FilePath     string    `json:"file_path"`
	CreatedAt    time.Time `json:"created_at"`
	FileSize     int64     `json:"file_size"`
	IsCompressed bool      `json:"is_compressed"`
	BackupType   string    `json:"backup_type"`
}
