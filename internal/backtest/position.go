package backtest

import "time"

// PositionState is the simulator's single position slot.
type PositionState int

const (
	Flat PositionState = iota
	Long
)

func (s PositionState) String() string {
	if s == Long {
		return "LONG"
	}
	return "FLAT"
}

// Position is the open position, if any. Entry fields are meaningful only
// while Long.
type Position struct {
	State      PositionState `json:"state"`
	Qty        float64       `json:"qty"`
	EntryPrice float64       `json:"entry_price"`
	EntryIndex int           `json:"entry_index"`
	EntryTS    time.Time     `json:"entry_ts"`
}

// MarkToMarket returns the position value at price.
func (p Position) MarkToMarket(price float64) float64 {
	if p.State != Long {
		return 0
	}
	return p.Qty * price
}

// ReturnAt is the unrealized return fraction at price; 0 when flat or
// when the entry price is zero.
func (p Position) ReturnAt(price float64) float64 {
	if p.State != Long || p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}
