package model

import "time"

// TradeKind is the side of a simulated fill.
type TradeKind string

const (
	TradeBuy  TradeKind = "BUY"
	TradeSell TradeKind = "SELL"
)

// Trade is one entry of a backtest trade log.
type Trade struct {
	Kind   TradeKind `json:"kind"`
	Index  int       `json:"index"` // bar index in the price series
	TS     time.Time `json:"ts"`
	Price  float64   `json:"price"`
	Equity float64   `json:"equity"` // account value right after the fill
	PnL    float64   `json:"pnl"`    // realized return fraction, Sell only
}

// EquityPoint is the mark-to-market account value at one evaluated bar.
type EquityPoint struct {
	TS     time.Time `json:"ts"`
	Equity float64   `json:"equity"`
}
