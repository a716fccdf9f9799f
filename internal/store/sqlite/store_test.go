package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache", "bars.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func hourly(n int, from time.Time) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = model.Bar{
			TS:     from.Add(time.Duration(i) * time.Hour),
			Open:   p,
			High:   p + 1,
			Low:    p - 1,
			Close:  p + 0.5,
			Volume: float64(10 * i),
		}
	}
	return bars
}

func TestStore_WriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := hourly(5, from)

	require.NoError(t, s.WriteBars(ctx, "BTCUSDT", "1h", bars))

	got, err := s.ReadBars(ctx, "BTCUSDT", "1h", time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, bars, got)

	last, err := s.LastTimestamp(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.True(t, last.Equal(bars[4].TS))
}

func TestStore_FiltersAndLimit(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := hourly(10, from)
	require.NoError(t, s.WriteBars(ctx, "BTCUSDT", "1h", bars))
	require.NoError(t, s.WriteBars(ctx, "ETHUSDT", "1h", hourly(3, from)))

	after, err := s.ReadBars(ctx, "BTCUSDT", "1h", bars[6].TS, 0)
	require.NoError(t, err)
	assert.Equal(t, bars[7:], after, "strictly after")

	newest, err := s.ReadBars(ctx, "BTCUSDT", "1h", time.Time{}, 3)
	require.NoError(t, err)
	assert.Equal(t, bars[7:], newest, "newest three, ascending")

	none, err := s.ReadBars(ctx, "BTCUSDT", "4h", time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ReplaceOnConflict(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	bars := hourly(3, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.WriteBars(ctx, "BTCUSDT", "1h", bars))

	updated := bars[2]
	updated.Close = 999
	require.NoError(t, s.WriteBars(ctx, "BTCUSDT", "1h", []model.Bar{updated}))

	got, err := s.ReadBars(ctx, "BTCUSDT", "1h", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 999.0, got[2].Close)
}

func TestStore_LastTimestampEmpty(t *testing.T) {
	s := openTemp(t)
	last, err := s.LastTimestamp(context.Background(), "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}
