package indicator

import "fmt"

// MACD is the difference of a fast and a slow EMA plus an EMA of that
// difference (the signal line). The MACD line is defined once both EMAs are;
// the signal line is seeded from the first signalLen defined MACD values.
type MACD struct {
	fast, slow int
	fastEMA    *EMA
	slowEMA    *EMA
	signalEMA  *EMA
	macd       float64
	macdReady  bool
}

// NewMACD creates a MACD(fast, slow, signalLen) indicator.
func NewMACD(fast, slow, signalLen int) *MACD {
	return &MACD{
		fast:      fast,
		slow:      slow,
		fastEMA:   NewEMA(fast),
		slowEMA:   NewEMA(slow),
		signalEMA: NewEMA(signalLen),
	}
}

func (m *MACD) Name() string { return fmt.Sprintf("MACD_%d_%d", m.fast, m.slow) }

func (m *MACD) Update(v float64) {
	m.fastEMA.Update(v)
	m.slowEMA.Update(v)
	if !m.fastEMA.Ready() || !m.slowEMA.Ready() {
		return
	}
	m.macd = m.fastEMA.Value() - m.slowEMA.Value()
	m.macdReady = true
	m.signalEMA.Update(m.macd)
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.macd }

// Ready reports whether the MACD line is defined.
func (m *MACD) Ready() bool { return m.macdReady }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signalEMA.Value() }

// SignalReady reports whether the signal line is defined.
func (m *MACD) SignalReady() bool { return m.signalEMA.Ready() }

// MACDLines holds the MACD and signal series.
type MACDLines struct {
	MACD   Series
	Signal Series
}

// MACDSeries computes macd = EMA(fast) − EMA(slow) and signal = EMA(macd, signalLen).
func MACDSeries(values []float64, fast, slow, signalLen int) MACDLines {
	m := NewMACD(fast, slow, signalLen)
	out := MACDLines{
		MACD:   make(Series, len(values)),
		Signal: make(Series, len(values)),
	}
	for i, v := range values {
		m.Update(v)
		if m.Ready() {
			out.MACD[i] = Defined(m.Value())
		}
		if m.SignalReady() {
			out.Signal[i] = Defined(m.Signal())
		}
	}
	return out
}
