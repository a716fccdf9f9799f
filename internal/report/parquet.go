package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/optimize"
)

// EquityRecord is the Parquet schema for an equity curve point.
type EquityRecord struct {
	Strategy  string  `parquet:"strategy"`
	Timestamp int64   `parquet:"timestamp_ms"` // Unix ms
	Equity    float64 `parquet:"equity"`
}

// TradeRecord is the Parquet schema for a trade log entry.
type TradeRecord struct {
	Strategy  string  `parquet:"strategy"`
	Index     int64   `parquet:"index"`
	Timestamp int64   `parquet:"timestamp_ms"`
	Kind      string  `parquet:"kind"`
	Price     float64 `parquet:"price"`
	Equity    float64 `parquet:"equity"`
	PnL       float64 `parquet:"pnl"`
}

// OptimizationRecord is the Parquet schema for one grid search row.
// Parameters are flattened into "k=v k=v" form so the schema stays fixed across
// strategy kinds.
type OptimizationRecord struct {
	Kind           string  `parquet:"kind"`
	Index          int64   `parquet:"index"`
	Params         string  `parquet:"params"`
	TotalReturnPct float64 `parquet:"total_return_pct"`
	FinalEquity    float64 `parquet:"final_equity"`
	TradeCount     int64   `parquet:"trade_count"`
	WinRatePct     float64 `parquet:"win_rate_pct"`
	MaxDrawdownPct float64 `parquet:"max_drawdown_pct"`
	SharpeRatio    float64 `parquet:"sharpe_ratio"`
}

// EquityRecords converts an equity curve.
func EquityRecords(strategyName string, points []model.EquityPoint) []EquityRecord {
	out := make([]EquityRecord, len(points))
	for i, p := range points {
		out[i] = EquityRecord{Strategy: strategyName, Timestamp: p.TS.UnixMilli(), Equity: p.Equity}
	}
	return out
}

// TradeRecords converts a trade log.
func TradeRecords(strategyName string, trades []model.Trade) []TradeRecord {
	out := make([]TradeRecord, len(trades))
	for i, t := range trades {
		out[i] = TradeRecord{
			Strategy:  strategyName,
			Index:     int64(t.Index),
			Timestamp: t.TS.UnixMilli(),
			Kind:      string(t.Kind),
			Price:     t.Price,
			Equity:    t.Equity,
			PnL:       t.PnL,
		}
	}
	return out
}

// OptimizationRecords converts the rows of a grid search report.
func OptimizationRecords(rep *optimize.Report) []OptimizationRecord {
	out := make([]OptimizationRecord, len(rep.Rows))
	for i, row := range rep.Rows {
		m := row.Metrics
		out[i] = OptimizationRecord{
			Kind:           string(rep.Kind),
			Index:          int64(row.Index),
			Params:         row.Params.String(),
			TotalReturnPct: m.TotalReturnPct,
			FinalEquity:    m.FinalEquity,
			TradeCount:     int64(m.TradeCount),
			WinRatePct:     m.WinRatePct,
			MaxDrawdownPct: m.MaxDrawdownPct,
			SharpeRatio:    m.SharpeRatio,
		}
	}
	return out
}

// WriteParquet writes records to path, creating its directory.
func WriteParquet[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

// ReadParquet reads every record of path.
func ReadParquet[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
