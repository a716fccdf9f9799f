package strategy

import (
	"fmt"

	"trading-backtestv1/internal/indicator"
	"trading-backtestv1/internal/model"
)

// volumeSurge is how far volume must exceed its moving average to confirm a buy.
const volumeSurge = 1.5

// EnhancedTrendRSI buys oversold dips only inside an uptrend (close above the
// long EMA) and on a volume surge. It sells on RSI overbought alone.
type EnhancedTrendRSI struct {
	RSIPeriod int
	EMAPeriod int
	Buy       float64
	Sell      float64
	VolMA     int
}

func newEnhancedTrendRSIFromParams(p Params) (*EnhancedTrendRSI, error) {
	rsiPeriod, err := p.window("rsi_period")
	if err != nil {
		return nil, err
	}
	emaPeriod, err := p.window("ema_period")
	if err != nil {
		return nil, err
	}
	volMA, err := p.window("vol_ma")
	if err != nil {
		return nil, err
	}
	buy, sell, err := thresholds(p)
	if err != nil {
		return nil, err
	}
	return &EnhancedTrendRSI{RSIPeriod: rsiPeriod, EMAPeriod: emaPeriod, Buy: buy, Sell: sell, VolMA: volMA}, nil
}

func (s *EnhancedTrendRSI) Name() string {
	return fmt.Sprintf("EnhancedTrendRSI(%d,%d,%g,%g,%d)", s.RSIPeriod, s.EMAPeriod, s.Buy, s.Sell, s.VolMA)
}

func (s *EnhancedTrendRSI) Kind() Kind { return KindEnhancedTrendRSI }

func (s *EnhancedTrendRSI) Params() Params {
	return Params{
		"rsi_period": float64(s.RSIPeriod),
		"ema_period": float64(s.EMAPeriod),
		"buy":        s.Buy,
		"sell":       s.Sell,
		"vol_ma":     float64(s.VolMA),
	}
}

// Lookback also covers the trend EMA, so a series shorter than EMAPeriod
// produces no signals at all, sells included.
func (s *EnhancedTrendRSI) Lookback() int {
	return max(s.RSIPeriod, s.EMAPeriod-1, s.VolMA-1)
}

func (s *EnhancedTrendRSI) Analyze(series model.Series) []model.Signal {
	closes := series.Closes()
	volumes := series.Volumes()
	rsi := indicator.RSISeries(closes, s.RSIPeriod)
	ema := indicator.EMASeries(closes, s.EMAPeriod)
	volAvg := indicator.SMASeries(volumes, s.VolMA)
	return gate(series.Len(), s.Lookback(), func(i int) model.Signal {
		r, ok := rsi.At(i)
		if !ok {
			return model.SignalNone
		}
		if r > s.Sell {
			return model.SignalSell
		}
		trend, ok1 := ema.At(i)
		avg, ok2 := volAvg.At(i)
		if ok1 && ok2 && r < s.Buy && closes[i] > trend && volumes[i] > volumeSurge*avg {
			return model.SignalBuy
		}
		return model.SignalNone
	})
}
