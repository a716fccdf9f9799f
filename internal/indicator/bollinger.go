package indicator

import (
	"math"
	"strconv"
)

// Bollinger tracks a moving average band offset by k standard deviations.
// The deviation is the population standard deviation of the window (divide by
// window, not window-1), matching TA-Lib's BBANDS.
type Bollinger struct {
	sma   *SMA
	k     float64
	mid   float64
	upper float64
	lower float64
}

// NewBollinger creates Bollinger bands over window with multiplier k.
func NewBollinger(window int, k float64) *Bollinger {
	return &Bollinger{sma: NewSMA(window), k: k}
}

func (b *Bollinger) Name() string { return "BB_" + strconv.Itoa(b.sma.period) }

func (b *Bollinger) Update(v float64) {
	b.sma.Update(v)
	if !b.sma.Ready() {
		return
	}
	b.mid = b.sma.Value()
	var sq float64
	for _, x := range b.sma.Window() {
		d := x - b.mid
		sq += d * d
	}
	dev := math.Sqrt(sq / float64(b.sma.period))
	b.upper = b.mid + b.k*dev
	b.lower = b.mid - b.k*dev
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.mid }
func (b *Bollinger) Ready() bool    { return b.sma.Ready() }

// Upper returns the upper band.
func (b *Bollinger) Upper() float64 { return b.upper }

// Lower returns the lower band.
func (b *Bollinger) Lower() float64 { return b.lower }

// Bands holds the three Bollinger series.
type Bands struct {
	Mid   Series
	Upper Series
	Lower Series
}

// BollingerSeries computes mid = SMA(window), upper/lower = mid ± k·σ.
func BollingerSeries(values []float64, window int, k float64) Bands {
	bb := NewBollinger(window, k)
	out := Bands{
		Mid:   make(Series, len(values)),
		Upper: make(Series, len(values)),
		Lower: make(Series, len(values)),
	}
	for i, v := range values {
		bb.Update(v)
		if !bb.Ready() {
			continue
		}
		out.Mid[i] = Defined(bb.Value())
		out.Upper[i] = Defined(bb.Upper())
		out.Lower[i] = Defined(bb.Lower())
	}
	return out
}
