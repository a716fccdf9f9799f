package indicator

import "strconv"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 0
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA_" + strconv.Itoa(s.period) }

func (s *SMA) Update(v float64) {
	if s.period == 0 {
		return
	}
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.period > 0 && s.count >= s.period }

// Window returns the values currently inside the window, oldest first.
// Only complete once Ready.
func (s *SMA) Window() []float64 {
	n := s.count
	if n > s.period {
		n = s.period
	}
	out := make([]float64, 0, n)
	start := s.idx
	if s.count < s.period {
		start = 0
	}
	for i := 0; i < n; i++ {
		out = append(out, s.buf[(start+i)%s.period])
	}
	return out
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// SMASeries returns the arithmetic mean of the trailing window values;
// undefined for index < window-1.
func SMASeries(values []float64, window int) Series {
	return run(NewSMA(window), values)
}
