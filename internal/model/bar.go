package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedBar is returned when a bar violates the series contract
// (non-increasing timestamp, negative or non-finite field).
var ErrMalformedBar = errors.New("malformed bar")

// Bar is one OHLCV observation for a fixed interval.
type Bar struct {
	TS     time.Time `json:"ts"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

func (b Bar) validate() error {
	for _, f := range [...]struct {
		name string
		v    float64
	}{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}, {"volume", b.Volume},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrMalformedBar, f.name)
		}
		if f.v < 0 {
			return fmt.Errorf("%w: %s is negative (%v)", ErrMalformedBar, f.name, f.v)
		}
	}
	return nil
}

// Series is an ordered, immutable sequence of bars.
// The zero value is an empty series.
type Series struct {
	bars []Bar
}

// NewSeries validates bars and returns them as a Series. The input slice is
// copied so later mutation by the caller cannot leak into the series.
func NewSeries(bars []Bar) (Series, error) {
	cp := make([]Bar, len(bars))
	for i, b := range bars {
		if err := b.validate(); err != nil {
			return Series{}, fmt.Errorf("bar %d: %w", i, err)
		}
		if i > 0 && !b.TS.After(bars[i-1].TS) {
			return Series{}, fmt.Errorf("bar %d: %w: timestamp %s not after %s",
				i, ErrMalformedBar, b.TS.Format(time.RFC3339), bars[i-1].TS.Format(time.RFC3339))
		}
		cp[i] = b
	}
	return Series{bars: cp}, nil
}

// MustSeries is NewSeries for fixtures; it panics on malformed input.
func MustSeries(bars []Bar) Series {
	s, err := NewSeries(bars)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.bars) }

// At returns the bar at index i.
func (s Series) At(i int) Bar { return s.bars[i] }

// Last returns the final bar; ok is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Prefix returns the series truncated to its first n bars.
// Prefixes share storage with the parent, which is safe because neither can be mutated.
func (s Series) Prefix(n int) Series {
	if n < 0 {
		n = 0
	}
	if n > len(s.bars) {
		n = len(s.bars)
	}
	return Series{bars: s.bars[:n:n]}
}

// Bars returns a copy of the underlying bars.
func (s Series) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

// Closes returns the close prices in index order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volumes in index order.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Volume
	}
	return out
}
