package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"trading-backtestv1/internal/model"
)

func TestMaxDrawdownPct(t *testing.T) {
	cases := []struct {
		name   string
		equity []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single point", []float64{100}, 0},
		{"non-decreasing", []float64{100, 100, 101, 150}, 0},
		{"dip and rebound", []float64{100, 80, 120}, -20},
		{"deepest of two", []float64{100, 90, 200, 150, 210, 205}, -25},
		{"starts at zero", []float64{0, 0, 10, 5}, -50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, MaxDrawdownPct(tc.equity), 1e-9)
		})
	}
}

func TestSharpeRatio(t *testing.T) {
	assert.Zero(t, SharpeRatio(nil))
	assert.Zero(t, SharpeRatio([]float64{100, 110}), "one return")
	assert.Zero(t, SharpeRatio([]float64{100, 100, 100}), "zero deviation")

	// returns 0.1, -0.1: mean 0
	assert.InDelta(t, 0, SharpeRatio([]float64{100, 110, 99}), 1e-12)

	// returns 0.1, 0.0, 0.2: mean 0.1, sample sd 0.1
	eq := []float64{100, 110, 110, 132}
	assert.InDelta(t, 1.0, SharpeRatio(eq), 1e-9)

	// zero previous equity is skipped rather than dividing by zero
	s := SharpeRatio([]float64{0, 100, 110, 110, 132})
	assert.False(t, math.IsNaN(s) || math.IsInf(s, 0))
	assert.InDelta(t, 1.0, s, 1e-9)

	// a wipe-out mid-curve: -1 is kept, the return out of 0 is dropped,
	// leaving -1, 0.1, 0, 0.2
	s = SharpeRatio([]float64{100, 0, 100, 110, 110, 132})
	assert.InDelta(t, -0.3147325909, s, 1e-9)
}

func TestWinRatePct(t *testing.T) {
	assert.Zero(t, WinRatePct(nil))
	assert.Zero(t, WinRatePct([]model.Trade{{Kind: model.TradeBuy}}))

	trades := []model.Trade{
		{Kind: model.TradeBuy},
		{Kind: model.TradeSell, PnL: 0.05},
		{Kind: model.TradeBuy},
		{Kind: model.TradeSell, PnL: 0},
		{Kind: model.TradeBuy},
		{Kind: model.TradeSell, PnL: -0.02},
		{Kind: model.TradeBuy},
		{Kind: model.TradeSell, PnL: 0.01},
	}
	assert.InDelta(t, 50, WinRatePct(trades), 1e-9)
}
