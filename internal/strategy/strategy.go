// Package strategy derives per-bar trading signals from a price series.
//
// A Strategy receives an immutable bar series and returns one Signal per bar
// (BUY/SELL/NONE). The set of variants is closed: New builds one of the kinds
// listed in Kinds from a Params map with defaults filled in.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"trading-backtestv1/internal/model"
)

// ErrInvalidParams is returned when a parameter set cannot configure a strategy.
var ErrInvalidParams = errors.New("invalid strategy parameters")

// ErrUnknownKind is returned for a strategy kind outside the closed set.
var ErrUnknownKind = errors.New("unknown strategy kind")

// Kind identifies a strategy variant.
type Kind string

const (
	KindRSI              Kind = "rsi"
	KindMACD             Kind = "macd"
	KindBollingerRSI     Kind = "bollinger_rsi"
	KindEnhancedTrendRSI Kind = "enhanced_trend_rsi"
)

// Kinds returns every supported strategy kind.
func Kinds() []Kind {
	return []Kind{KindRSI, KindMACD, KindBollingerRSI, KindEnhancedTrendRSI}
}

// ParseKind resolves a kind name (case-insensitive, '-' accepted for '_').
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Strategy is the interface that all strategy variants implement.
type Strategy interface {
	// Name returns a label including the parameters, e.g. "RSI(14,30,70)".
	Name() string

	Kind() Kind

	// Params returns the full parameter set the strategy was built with.
	Params() Params

	// Lookback is the first bar index at which the strategy can emit a
	// signal. Bars before it always yield SignalNone.
	Lookback() int

	// Analyze returns one signal per bar. The signal at index i depends only
	// on bars [0..i].
	Analyze(series model.Series) []model.Signal
}

// LatestSignal returns the signal for the final bar, or SignalNone for an
// empty series.
func LatestSignal(s Strategy, series model.Series) model.Signal {
	signals := s.Analyze(series)
	if len(signals) == 0 {
		return model.SignalNone
	}
	return signals[len(signals)-1]
}

// Params is a named set of numeric knobs. Window-like knobs must hold whole numbers.
type Params map[string]float64

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders "k=v" pairs in key order.
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, k+"="+strconv.FormatFloat(p[k], 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}

func (p Params) window(name string) (int, error) {
	v := p[name]
	if v < 1 || v != math.Trunc(v) || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %v", ErrInvalidParams, name, v)
	}
	return int(v), nil
}

func (p Params) number(name string) (float64, error) {
	v := p[name]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrInvalidParams, name)
	}
	return v, nil
}

func thresholds(p Params) (buy, sell float64, err error) {
	if buy, err = p.number("buy"); err != nil {
		return 0, 0, err
	}
	if sell, err = p.number("sell"); err != nil {
		return 0, 0, err
	}
	if buy >= sell {
		return 0, 0, fmt.Errorf("%w: buy threshold %v must be below sell threshold %v", ErrInvalidParams, buy, sell)
	}
	return buy, sell, nil
}

// Defaults returns the default parameters for kind.
func Defaults(kind Kind) (Params, error) {
	switch kind {
	case KindRSI:
		return Params{"period": 14, "buy": 30, "sell": 70}, nil
	case KindMACD:
		return Params{"fast": 12, "slow": 26, "signal": 9}, nil
	case KindBollingerRSI:
		return Params{"bb_window": 20, "bb_k": 2, "rsi_window": 14, "buy": 30, "sell": 70}, nil
	case KindEnhancedTrendRSI:
		return Params{"rsi_period": 14, "ema_period": 200, "buy": 30, "sell": 70, "vol_ma": 20}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
}

// New builds a strategy of the given kind. Missing parameters take their
// defaults; unknown parameter names are rejected.
func New(kind Kind, params Params) (Strategy, error) {
	p, err := Defaults(kind)
	if err != nil {
		return nil, err
	}
	for k, v := range params {
		if _, ok := p[k]; !ok {
			return nil, fmt.Errorf("%w: %s has no parameter %q", ErrInvalidParams, kind, k)
		}
		p[k] = v
	}

	switch kind {
	case KindRSI:
		return newRSIFromParams(p)
	case KindMACD:
		return newMACDFromParams(p)
	case KindBollingerRSI:
		return newBollingerRSIFromParams(p)
	default:
		return newEnhancedTrendRSIFromParams(p)
	}
}

// Validate reports whether params can configure kind.
func Validate(kind Kind, params Params) error {
	_, err := New(kind, params)
	return err
}

// gate turns per-bar conditions into a signal series. Bars before lookback
// and bars where eval reports no signal stay SignalNone.
func gate(n, lookback int, eval func(i int) model.Signal) []model.Signal {
	out := make([]model.Signal, n)
	for i := lookback; i < n; i++ {
		out[i] = eval(i)
	}
	return out
}
