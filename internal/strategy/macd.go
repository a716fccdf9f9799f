package strategy

import (
	"fmt"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
)

// MACDCrossover buys when the MACD line crosses above its signal line and
// sells when it crosses below. Both bars of the crossing must be defined.
type MACDCrossover struct {
	Fast   int
	Slow   int
	Signal int
}

func newMACDFromParams(p Params) (*MACDCrossover, error) {
	fast, err := p.window("fast")
	if err != nil {
		return nil, err
	}
	slow, err := p.window("slow")
	if err != nil {
		return nil, err
	}
	sig, err := p.window("signal")
	if err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: fast period %d must be below slow period %d", ErrInvalidParams, fast, slow)
	}
	return &MACDCrossover{Fast: fast, Slow: slow, Signal: sig}, nil
}

func (s *MACDCrossover) Name() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", s.Fast, s.Slow, s.Signal)
}

func (s *MACDCrossover) Kind() Kind { return KindMACD }

func (s *MACDCrossover) Params() Params {
	return Params{"fast": float64(s.Fast), "slow": float64(s.Slow), "signal": float64(s.Signal)}
}

// Lookback is one bar past the first defined signal line value, since a
// crossing compares against the previous bar.
func (s *MACDCrossover) Lookback() int { return s.Slow + s.Signal - 1 }

func (s *MACDCrossover) Analyze(series model.Series) []model.Signal {
	lines := indicator.MACDSeries(series.Closes(), s.Fast, s.Slow, s.Signal)
	return gate(series.Len(), s.Lookback(), func(i int) model.Signal {
		prevM, ok1 := lines.MACD.At(i - 1)
		prevS, ok2 := lines.Signal.At(i - 1)
		m, ok3 := lines.MACD.At(i)
		sig, ok4 := lines.Signal.At(i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return model.SignalNone
		}
		switch {
		case prevM < prevS && m > sig:
			return model.SignalBuy
		case prevM > prevS && m < sig:
			return model.SignalSell
		}
		return model.SignalNone
	})
}
