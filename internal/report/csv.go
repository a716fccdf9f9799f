// Package report exports backtest and grid search results as CSV, Parquet
// and an HTML equity chart.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/optimize"
)

const tsLayout = time.RFC3339

// WriteTradesCSV writes the trade log, one row per fill.
func WriteTradesCSV(w io.Writer, trades []model.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "ts", "kind", "price", "equity", "pnl"}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			strconv.Itoa(t.Index),
			t.TS.UTC().Format(tsLayout),
			string(t.Kind),
			formatF(t.Price),
			formatF(t.Equity),
			formatF(t.PnL),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes the equity curve.
func WriteEquityCSV(w io.Writer, points []model.EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ts", "equity"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write([]string{p.TS.UTC().Format(tsLayout), formatF(p.Equity)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOptimizationCSV writes one row per finished combination: the
// parameter values in ParamNames order followed by the metrics.
func WriteOptimizationCSV(w io.Writer, rep *optimize.Report) error {
	cw := csv.NewWriter(w)
	header := append([]string{"index"}, rep.ParamNames...)
	header = append(header, "total_return_pct", "final_equity", "trade_count", "win_rate_pct", "max_drawdown_pct", "sharpe_ratio")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rep.Rows {
		rec := []string{strconv.Itoa(row.Index)}
		for _, name := range rep.ParamNames {
			rec = append(rec, formatF(row.Params[name]))
		}
		m := row.Metrics
		rec = append(rec,
			formatF(m.TotalReturnPct),
			formatF(m.FinalEquity),
			strconv.Itoa(m.TradeCount),
			formatF(m.WinRatePct),
			formatF(m.MaxDrawdownPct),
			formatF(m.SharpeRatio),
		)
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile creates path (and its directory) and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
