// Package backtest replays a signal series against a price series with a
// single long-only position, producing a trade log, an equity curve and
// summary metrics.
//
// Fills happen at the bar close with a flat proportional fee. The simulator
// is synchronous and side-effect free; one Simulator instance owns the state
// of one run.
package backtest

import (
	"errors"
	"fmt"
	"math"

	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/strategy"
)

// ErrSignalMismatch is returned when the signal series is not aligned with
// the price series.
var ErrSignalMismatch = errors.New("signal series length does not match price series")

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid backtest config")

// Config holds account settings for a run.
type Config struct {
	InitialCapital float64 `json:"initial_capital" mapstructure:"initial_capital"`
	FeeRate        float64 `json:"fee_rate" mapstructure:"fee_rate"` // proportional, e.g. 0.001 = 0.1%
}

// DefaultConfig returns 10,000 of capital at a 0.1% fee.
func DefaultConfig() Config {
	return Config{InitialCapital: 10000, FeeRate: 0.001}
}

// Validate checks capital > 0 and fee in [0, 1).
func (c Config) Validate() error {
	if !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0) {
		return fmt.Errorf("%w: initial capital must be positive, got %v", ErrInvalidConfig, c.InitialCapital)
	}
	if !(c.FeeRate >= 0 && c.FeeRate < 1) {
		return fmt.Errorf("%w: fee rate must be in [0, 1), got %v", ErrInvalidConfig, c.FeeRate)
	}
	return nil
}

// Result is the outcome of one run.
type Result struct {
	Strategy string              `json:"strategy,omitempty"`
	Config   Config              `json:"config"`
	Start    int                 `json:"start"` // first evaluated bar index
	Trades   []model.Trade       `json:"trades"`
	Equity   []model.EquityPoint `json:"equity"`
	Position Position            `json:"position"` // state after the last bar
	Metrics  Metrics             `json:"metrics"`
}

// Simulator is the Flat/Long state machine. Create one per run; Run resets
// it, so a Simulator may be reused sequentially but not concurrently.
type Simulator struct {
	cfg      Config
	capital  float64
	position Position
	trades   []model.Trade
	equity   []model.EquityPoint
}

// NewSimulator creates a simulator for cfg.
func NewSimulator(cfg Config) *Simulator {
	return &Simulator{cfg: cfg}
}

func (s *Simulator) reset(n int) {
	s.capital = s.cfg.InitialCapital
	s.position = Position{}
	s.trades = make([]model.Trade, 0, 16)
	s.equity = make([]model.EquityPoint, 0, n)
}

// Run replays signals against series starting at bar index start. Bars
// before start are skipped and produce no equity points. An empty series or
// a start past the end yields a neutral result.
func (s *Simulator) Run(series model.Series, signals []model.Signal, start int) (Result, error) {
	if len(signals) != series.Len() {
		return Result{}, fmt.Errorf("%w: %d signals for %d bars", ErrSignalMismatch, len(signals), series.Len())
	}
	if start < 0 {
		start = 0
	}
	s.reset(max(series.Len()-start, 0))

	for i := start; i < series.Len(); i++ {
		s.step(i, series.At(i), signals[i])
	}

	return Result{
		Config:   s.cfg,
		Start:    start,
		Trades:   s.trades,
		Equity:   s.equity,
		Position: s.position,
		Metrics:  computeMetrics(s.cfg.InitialCapital, s.trades, s.equity),
	}, nil
}

func (s *Simulator) step(i int, bar model.Bar, sig model.Signal) {
	price := bar.Close

	switch {
	case sig == model.SignalBuy && s.position.State == Flat && price > 0:
		qty := s.capital * (1 - s.cfg.FeeRate) / price
		s.position = Position{State: Long, Qty: qty, EntryPrice: price, EntryIndex: i, EntryTS: bar.TS}
		s.capital = 0
		s.trades = append(s.trades, model.Trade{
			Kind:   model.TradeBuy,
			Index:  i,
			TS:     bar.TS,
			Price:  price,
			Equity: qty * price,
		})

	case sig == model.SignalSell && s.position.State == Long:
		pnl := s.position.ReturnAt(price)
		s.capital = s.position.Qty * price * (1 - s.cfg.FeeRate)
		s.position = Position{}
		s.trades = append(s.trades, model.Trade{
			Kind:   model.TradeSell,
			Index:  i,
			TS:     bar.TS,
			Price:  price,
			Equity: s.capital,
			PnL:    pnl,
		})
	}

	eq := s.capital
	if s.position.State == Long {
		eq = s.position.MarkToMarket(price)
	}
	s.equity = append(s.equity, model.EquityPoint{TS: bar.TS, Equity: eq})
}

// RunStrategy analyzes series with strat and simulates from the strategy's
// lookback.
func RunStrategy(cfg Config, strat strategy.Strategy, series model.Series) (Result, error) {
	res, err := NewSimulator(cfg).Run(series, strat.Analyze(series), strat.Lookback())
	if err != nil {
		return Result{}, err
	}
	res.Strategy = strat.Name()
	return res, nil
}
