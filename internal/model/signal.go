package model

import (
	"fmt"
	"strings"
	"time"
)

// Signal is the per-bar decision emitted by a strategy.
// The zero value is SignalNone.
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// MarshalText encodes the signal as BUY, SELL or NONE.
func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts BUY, SELL or NONE in any case.
func (s *Signal) UnmarshalText(b []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(b))) {
	case "BUY":
		*s = SignalBuy
	case "SELL":
		*s = SignalSell
	case "NONE", "":
		*s = SignalNone
	default:
		return fmt.Errorf("unknown signal %q", string(b))
	}
	return nil
}

// SignalEvent is what the live loop hands to alerting and publishing collaborators.
type SignalEvent struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Strategy string    `json:"strategy"`
	Signal   Signal    `json:"signal"`
	Price    float64   `json:"price"`
	BarTS    time.Time `json:"bar_ts"`
	TraceID  string    `json:"trace_id,omitempty"`
}
