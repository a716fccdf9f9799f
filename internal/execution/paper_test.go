package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func signalAt(sig model.Signal, price float64, hour int) model.SignalEvent {
	return model.SignalEvent{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		Strategy: "RSI(14,30,70)",
		Signal:   sig,
		Price:    price,
		BarTS:    time.Date(2024, 1, 1, hour, 0, 0, 0, time.UTC),
		TraceID:  "trace",
	}
}

func TestPaperExecutor_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExecutor(PaperConfig{InitialCash: 1000, FeeRate: 0.001}, nil, quiet())

	buy, err := p.Execute(ctx, signalAt(model.SignalBuy, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, "PAPER-000001", buy.OrderID)
	assert.Equal(t, model.TradeBuy, buy.Side)
	assert.InDelta(t, 1.0, buy.Fee, 1e-9)
	assert.InDelta(t, 9.99, buy.Qty, 1e-9)
	assert.True(t, p.Long())
	assert.InDelta(t, 999.0, p.Equity(100), 1e-9)

	sell, err := p.Execute(ctx, signalAt(model.SignalSell, 110, 2))
	require.NoError(t, err)
	assert.Equal(t, "PAPER-000002", sell.OrderID)
	assert.InDelta(t, 1.0989, sell.Fee, 1e-9)
	assert.False(t, p.Long())
	assert.InDelta(t, 1097.8011, p.Equity(0), 1e-9)

	assert.Len(t, p.Fills(), 2)
}

func TestPaperExecutor_Slippage(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExecutor(PaperConfig{InitialCash: 1000, SlippageBps: 10}, nil, quiet())

	buy, err := p.Execute(ctx, signalAt(model.SignalBuy, 100, 1))
	require.NoError(t, err)
	assert.InDelta(t, 100.1, buy.Price, 1e-9)
	assert.InDelta(t, 0.1, buy.Slippage, 1e-9)

	sell, err := p.Execute(ctx, signalAt(model.SignalSell, 100, 2))
	require.NoError(t, err)
	assert.InDelta(t, 99.9, sell.Price, 1e-9)
	assert.Less(t, p.Equity(0), 1000.0)
}

func TestPaperExecutor_Rejections(t *testing.T) {
	ctx := context.Background()
	p := NewPaperExecutor(PaperConfig{InitialCash: 1000}, nil, quiet())

	_, err := p.Execute(ctx, signalAt(model.SignalSell, 100, 1))
	assert.ErrorIs(t, err, ErrNoPosition)

	_, err = p.Execute(ctx, signalAt(model.SignalNone, 100, 1))
	assert.Error(t, err)

	_, err = p.Execute(ctx, signalAt(model.SignalBuy, 0, 1))
	assert.Error(t, err)

	_, err = p.Execute(ctx, signalAt(model.SignalBuy, 100, 1))
	require.NoError(t, err)
	_, err = p.Execute(ctx, signalAt(model.SignalBuy, 90, 2))
	assert.ErrorIs(t, err, ErrAlreadyLong)

	assert.Len(t, p.Fills(), 1)
	assert.InDelta(t, 1000.0, p.Equity(100), 1e-9)
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) RecordFill(context.Context, Fill) error {
	f.calls++
	return errors.New("disk full")
}

func TestPaperExecutor_RecorderFailureKeepsFill(t *testing.T) {
	rec := &failingRecorder{}
	p := NewPaperExecutor(PaperConfig{InitialCash: 1000}, rec, quiet())

	_, err := p.Execute(context.Background(), signalAt(model.SignalBuy, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.True(t, p.Long())
}

func TestJournal_RecordAndRead(t *testing.T) {
	ctx := context.Background()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"), quiet())
	require.NoError(t, err)
	defer j.Close()

	p := NewPaperExecutor(PaperConfig{InitialCash: 1000, FeeRate: 0.001}, j, quiet())
	_, err = p.Execute(ctx, signalAt(model.SignalBuy, 100, 1))
	require.NoError(t, err)
	_, err = p.Execute(ctx, signalAt(model.SignalSell, 120, 5))
	require.NoError(t, err)

	fills, err := j.Fills(ctx, 10)
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, "PAPER-000002", fills[0].OrderID, "newest first")
	assert.Equal(t, model.TradeSell, fills[0].Side)
	assert.InDelta(t, 120.0, fills[0].Price, 1e-9)
	assert.Equal(t, time.Date(2024, 1, 1, 5, 0, 0, 0, time.UTC), fills[0].BarTS)
	assert.Equal(t, "trace", fills[0].TraceID)
	assert.Equal(t, model.TradeBuy, fills[1].Side)
	assert.False(t, fills[1].FilledAt.IsZero())

	limited, err := j.Fills(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
