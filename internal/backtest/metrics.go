package backtest

import (
	"math"

	"trading-backtestv1/internal/model"
)

// Metrics summarizes one backtest run.
type Metrics struct {
	FinalEquity    float64 `json:"final_equity"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TradeCount     int     `json:"trade_count"`
	WinRatePct     float64 `json:"win_rate_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
}

func computeMetrics(initialCapital float64, trades []model.Trade, equity []model.EquityPoint) Metrics {
	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Equity
	}

	final := initialCapital
	if len(values) > 0 {
		final = values[len(values)-1]
	}

	m := Metrics{
		FinalEquity:    final,
		TradeCount:     len(trades),
		WinRatePct:     WinRatePct(trades),
		MaxDrawdownPct: MaxDrawdownPct(values),
		SharpeRatio:    SharpeRatio(values),
	}
	if initialCapital != 0 {
		m.TotalReturnPct = (final - initialCapital) / initialCapital * 100
	}
	return m
}

// WinRatePct is the share of Sell trades with positive pnl, in percent.
// It is 0 when there are no Sell trades.
func WinRatePct(trades []model.Trade) float64 {
	var sells, wins int
	for _, t := range trades {
		if t.Kind != model.TradeSell {
			continue
		}
		sells++
		if t.PnL > 0 {
			wins++
		}
	}
	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells) * 100
}

// MaxDrawdownPct returns the deepest decline from the running peak, in
// percent (≤ 0). Points at or below a non-positive peak are ignored.
func MaxDrawdownPct(equity []float64) float64 {
	var peak, worst float64
	for i, v := range equity {
		if i == 0 || v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (v - peak) / peak; dd < worst {
			worst = dd
		}
	}
	return worst * 100
}

// SharpeRatio is mean(r)/stddev(r) over per-bar returns r[i] = eq[i]/eq[i-1] - 1,
// using the sample standard deviation. Returns from a zero equity are skipped.
// It is 0 with fewer than two returns or zero deviation.
func SharpeRatio(equity []float64) float64 {
	returns := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(returns)-1))
	if std == 0 {
		return 0
	}
	return mean / std
}
