package strategy

import (
	"fmt"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
)

// RSIThreshold buys when RSI drops below Buy and sells when it rises above Sell.
type RSIThreshold struct {
	Period int
	Buy    float64
	Sell   float64
}

func newRSIFromParams(p Params) (*RSIThreshold, error) {
	period, err := p.window("period")
	if err != nil {
		return nil, err
	}
	buy, sell, err := thresholds(p)
	if err != nil {
		return nil, err
	}
	return &RSIThreshold{Period: period, Buy: buy, Sell: sell}, nil
}

func (s *RSIThreshold) Name() string {
	return fmt.Sprintf("RSI(%d,%g,%g)", s.Period, s.Buy, s.Sell)
}

func (s *RSIThreshold) Kind() Kind { return KindRSI }

func (s *RSIThreshold) Params() Params {
	return Params{"period": float64(s.Period), "buy": s.Buy, "sell": s.Sell}
}

func (s *RSIThreshold) Lookback() int { return s.Period }

func (s *RSIThreshold) Analyze(series model.Series) []model.Signal {
	rsi := indicator.RSISeries(series.Closes(), s.Period)
	return gate(series.Len(), s.Lookback(), func(i int) model.Signal {
		v, ok := rsi.At(i)
		switch {
		case !ok:
			return model.SignalNone
		case v < s.Buy:
			return model.SignalBuy
		case v > s.Sell:
			return model.SignalSell
		}
		return model.SignalNone
	})
}
