package optimize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"trading-backtestv1/internal/strategy"
)

// ErrBadRange is returned when a range expression cannot be parsed.
var ErrBadRange = errors.New("bad range")

// Range is the list of values to try for one parameter.
type Range struct {
	Name   string
	Values []float64
}

// Grid is the search space for one strategy kind. Base pins parameters that
// are not swept; anything in neither Base nor Ranges keeps its default.
type Grid struct {
	Kind   strategy.Kind
	Base   strategy.Params
	Ranges []Range
}

// Combination is one point of the grid.
type Combination struct {
	Index  int // position in enumeration order
	Params strategy.Params
}

// DefaultRSIGrid is the classic RSI sweep: period {10,14,20},
// buy {20,25,30,35}, sell {65,70,75,80}.
func DefaultRSIGrid() Grid {
	return Grid{
		Kind: strategy.KindRSI,
		Ranges: []Range{
			{Name: "period", Values: []float64{10, 14, 20}},
			{Name: "buy", Values: []float64{20, 25, 30, 35}},
			{Name: "sell", Values: []float64{65, 70, 75, 80}},
		},
	}
}

// Validate checks the kind and that every base and range name is a
// parameter of it.
func (g Grid) Validate() error {
	defaults, err := strategy.Defaults(g.Kind)
	if err != nil {
		return err
	}
	for name := range g.Base {
		if _, ok := defaults[name]; !ok {
			return fmt.Errorf("%w: %s has no parameter %q", strategy.ErrInvalidParams, g.Kind, name)
		}
	}
	for _, r := range g.Ranges {
		if _, ok := defaults[r.Name]; !ok {
			return fmt.Errorf("%w: %s has no parameter %q", strategy.ErrInvalidParams, g.Kind, r.Name)
		}
		if len(r.Values) == 0 {
			return fmt.Errorf("%w: range %s is empty", ErrBadRange, r.Name)
		}
	}
	return nil
}

// ParamNames returns the range names in declaration order.
func (g Grid) ParamNames() []string {
	names := make([]string, len(g.Ranges))
	for i, r := range g.Ranges {
		names[i] = r.Name
	}
	return names
}

// Size is the raw Cartesian product size before validation. A grid with no
// ranges has one combination: Base over the defaults.
func (g Grid) Size() int {
	n := 1
	for _, r := range g.Ranges {
		n *= len(r.Values)
	}
	return n
}

// Combinations enumerates the Cartesian product with the last range varying
// fastest. Combinations the strategy rejects (e.g. buy >= sell) are dropped
// and counted in skipped; indexes are renumbered densely over the kept ones.
func (g Grid) Combinations() (combos []Combination, skipped int) {
	total := g.Size()
	combos = make([]Combination, 0, total)
	idx := make([]int, len(g.Ranges))
	for n := 0; n < total; n++ {
		p := g.Base.Clone()
		for i, r := range g.Ranges {
			p[r.Name] = r.Values[idx[i]]
		}
		if err := strategy.Validate(g.Kind, p); err != nil {
			skipped++
		} else {
			combos = append(combos, Combination{Index: len(combos), Params: p})
		}
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(g.Ranges[i].Values) {
				break
			}
			idx[i] = 0
		}
	}
	return combos, skipped
}

// ParseRange parses "name=values" where values is a comma list ("10,14,20") or
// an inclusive from:to:step sweep ("20:35:5").
func ParseRange(expr string) (Range, error) {
	name, raw, ok := strings.Cut(expr, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Range{}, fmt.Errorf("%w: %q: want name=values", ErrBadRange, expr)
	}
	values, err := parseValues(strings.TrimSpace(raw))
	if err != nil {
		return Range{}, fmt.Errorf("%w: %s: %v", ErrBadRange, name, err)
	}
	return Range{Name: name, Values: values}, nil
}

func parseValues(expr string) ([]float64, error) {
	if parts := strings.Split(expr, ":"); len(parts) == 3 {
		var f [3]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, err
			}
			f[i] = v
		}
		return Linspace(f[0], f[1], f[2])
	}

	var out []float64
	for _, p := range strings.Split(expr, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, errors.New("no values")
	}
	return out, nil
}

// Linspace returns from, from+step, ... up to and including to.
func Linspace(from, to, step float64) ([]float64, error) {
	if !(step > 0) || to < from {
		return nil, fmt.Errorf("invalid sweep %v:%v:%v", from, to, step)
	}
	n := int(math.Floor((to-from)/step+1e-9)) + 1
	if n > 10000 {
		return nil, fmt.Errorf("sweep %v:%v:%v has %d values", from, to, step, n)
	}
	out := make([]float64, n)
	for i := range out {
		// from + i*step avoids accumulating rounding error
		out[i] = from + float64(i)*step
	}
	return out, nil
}
