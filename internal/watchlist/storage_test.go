package watchlist

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	storage, err := Open(filepath.Join(t.TempDir(), "watchlist.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestAddAssignsSequentialPositions(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Add(ctx, "7203.T", "Toyota"))
	require.NoError(t, storage.Add(ctx, "9984.T", "SoftBank"))
	require.NoError(t, storage.Add(ctx, "AAPL", "Apple"))

	symbols, err := storage.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"7203.T", "9984.T", "AAPL"}, symbols)

	items, err := storage.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i, item.Position)
	}
	assert.Equal(t, "Toyota", items[0].Name)
}

func TestAddRejectsEmptySymbol(t *testing.T) {
	storage := newTestStorage(t)

	assert.Error(t, storage.Add(context.Background(), "  ", ""))
}

func TestAddExistingSymbolKeepsPosition(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Add(ctx, "7203.T", "Toyota"))
	require.NoError(t, storage.Add(ctx, "9984.T", "SoftBank"))
	require.NoError(t, storage.Add(ctx, "7203.T", "Toyota Motor"))

	items, err := storage.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "7203.T", items[0].Symbol)
	assert.Equal(t, "Toyota Motor", items[0].Name, "re-adding must refresh the display name")
	assert.Equal(t, 0, items[0].Position)
}

func TestRemoveCompactsPositions(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for _, s := range []string{"A", "B", "C"} {
		require.NoError(t, storage.Add(ctx, s, ""))
	}

	require.NoError(t, storage.Remove(ctx, "B"))

	items, err := storage.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].Symbol)
	assert.Equal(t, 0, items[0].Position)
	assert.Equal(t, "C", items[1].Symbol)
	assert.Equal(t, 1, items[1].Position, "positions must close the gap after a removal")
}

func TestRemoveMissingSymbol(t *testing.T) {
	storage := newTestStorage(t)

	err := storage.Remove(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReorder(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for _, s := range []string{"A", "B", "C"} {
		require.NoError(t, storage.Add(ctx, s, ""))
	}

	require.NoError(t, storage.Reorder(ctx, []string{"C", "A", "B"}))

	symbols, err := storage.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, symbols)
}

func TestClearAndStats(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	empty, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalSymbols)

	require.NoError(t, storage.Add(ctx, "A", ""))
	require.NoError(t, storage.Add(ctx, "B", ""))

	stats, err := storage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSymbols)
	assert.False(t, stats.LatestAdded.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), stats.LatestAdded, time.Minute)

	require.NoError(t, storage.Clear(ctx))

	stats, err = storage.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSymbols)
}
