// Package indicator provides technical indicator calculations over price data.
//
// Every indicator exists in two forms: a streaming engine implementing the
// Indicator interface (fed one value at a time), and a pure series function
// that drives a fresh engine over a whole input and returns one Value per index.
// Values are undefined (Valid=false) until the warm-up window is satisfied.
package indicator

// Indicator is the interface for all streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "EMA_9").
	Name() string

	// Update feeds the next input value and recalculates.
	Update(v float64)

	// Value returns the current calculated value. Only meaningful when Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Value is one point of an indicator series. Valid is false during warm-up,
// which keeps "undefined" distinct from a defined zero.
type Value struct {
	Float64 float64
	Valid   bool
}

// Defined wraps f as a valid Value.
func Defined(f float64) Value { return Value{Float64: f, Valid: true} }

// Series is an indicator output aligned index-for-index with its input.
type Series []Value

// At returns the value at i and whether it is defined. Out-of-range indexes
// are reported as undefined.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) {
		return 0, false
	}
	return s[i].Float64, s[i].Valid
}

// FirstValid returns the first defined index, or -1.
func (s Series) FirstValid() int {
	for i, v := range s {
		if v.Valid {
			return i
		}
	}
	return -1
}

// run drives ind over values and records its output wherever it is ready.
func run(ind Indicator, values []float64) Series {
	out := make(Series, len(values))
	for i, v := range values {
		ind.Update(v)
		if ind.Ready() {
			out[i] = Defined(ind.Value())
		}
	}
	return out
}
