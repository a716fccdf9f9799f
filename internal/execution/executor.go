// Package execution turns live signals into orders. Only a paper executor
// exists: fills are simulated at the signal price and nothing leaves the
// process.
package execution

import (
	"context"
	"errors"
	"time"

	"trading-backtestv1/internal/model"
)

// ErrNoPosition is returned for a sell while flat; ErrAlreadyLong for a buy
// while holding.
var (
	ErrNoPosition  = errors.New("no open position")
	ErrAlreadyLong = errors.New("position already open")
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID  string            `json:"order_id"`
	Symbol   string            `json:"symbol"`
	Strategy string            `json:"strategy"`
	Side     model.TradeKind   `json:"side"`
	Qty      float64           `json:"qty"`
	Price    float64           `json:"price"`    // after slippage
	Fee      float64           `json:"fee"`      // quote currency
	Slippage float64           `json:"slippage"` // quote per unit
	BarTS    time.Time         `json:"bar_ts"`
	FilledAt time.Time         `json:"filled_at"`
	TraceID  string            `json:"trace_id,omitempty"`
	Event    model.SignalEvent `json:"-"`
}

// Executor acts on a live signal event.
type Executor interface {
	Execute(ctx context.Context, ev model.SignalEvent) (Fill, error)
}

// Recorder persists fills.
type Recorder interface {
	RecordFill(ctx context.Context, f Fill) error
}
