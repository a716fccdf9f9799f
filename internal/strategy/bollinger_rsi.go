package strategy

import (
	"fmt"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
)

// BollingerRSI is a mean-reversion strategy: buy when price touches the lower
// band while RSI is oversold, sell at the upper band while RSI is overbought.
type BollingerRSI struct {
	BBWindow  int
	BBK       float64
	RSIWindow int
	Buy       float64
	Sell      float64
}

func newBollingerRSIFromParams(p Params) (*BollingerRSI, error) {
	bbWindow, err := p.window("bb_window")
	if err != nil {
		return nil, err
	}
	k, err := p.number("bb_k")
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: bb_k must be positive, got %v", ErrInvalidParams, k)
	}
	rsiWindow, err := p.window("rsi_window")
	if err != nil {
		return nil, err
	}
	buy, sell, err := thresholds(p)
	if err != nil {
		return nil, err
	}
	return &BollingerRSI{BBWindow: bbWindow, BBK: k, RSIWindow: rsiWindow, Buy: buy, Sell: sell}, nil
}

func (s *BollingerRSI) Name() string {
	return fmt.Sprintf("BollingerRSI(%d,%g,%d,%g,%g)", s.BBWindow, s.BBK, s.RSIWindow, s.Buy, s.Sell)
}

func (s *BollingerRSI) Kind() Kind { return KindBollingerRSI }

func (s *BollingerRSI) Params() Params {
	return Params{
		"bb_window":  float64(s.BBWindow),
		"bb_k":       s.BBK,
		"rsi_window": float64(s.RSIWindow),
		"buy":        s.Buy,
		"sell":       s.Sell,
	}
}

func (s *BollingerRSI) Lookback() int { return max(s.BBWindow-1, s.RSIWindow) }

func (s *BollingerRSI) Analyze(series model.Series) []model.Signal {
	closes := series.Closes()
	bands := indicator.BollingerSeries(closes, s.BBWindow, s.BBK)
	rsi := indicator.RSISeries(closes, s.RSIWindow)
	return gate(series.Len(), s.Lookback(), func(i int) model.Signal {
		lower, ok1 := bands.Lower.At(i)
		upper, ok2 := bands.Upper.At(i)
		r, ok3 := rsi.At(i)
		if !ok1 || !ok2 || !ok3 {
			return model.SignalNone
		}
		c := closes[i]
		switch {
		case c <= lower && r < s.Buy:
			return model.SignalBuy
		case c >= upper && r > s.Sell:
			return model.SignalSell
		}
		return model.SignalNone
	})
}
