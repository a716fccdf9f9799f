package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trading-backtestv1/internal/model"
)

// PaperConfig sizes the simulated account.
type PaperConfig struct {
	InitialCash float64
	FeeRate     float64
	SlippageBps float64 // e.g. 5 = 0.05% against the trader
}

// PaperExecutor simulates an all-in long-only account: a buy spends all
// cash, a sell closes the whole position.
type PaperExecutor struct {
	cfg      PaperConfig
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	cash     float64
	qty      float64
	fills    []Fill
	orderSeq int64
}

// NewPaperExecutor creates a paper trading executor. recorder may be nil.
func NewPaperExecutor(cfg PaperConfig, recorder Recorder, logger *slog.Logger) *PaperExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaperExecutor{
		cfg:      cfg,
		recorder: recorder,
		log:      logger.With("component", "paper"),
		now:      time.Now,
		cash:     cfg.InitialCash,
	}
}

// Execute fills ev. None signals and signals that do not change the position
// return an error without touching the account.
func (p *PaperExecutor) Execute(ctx context.Context, ev model.SignalEvent) (Fill, error) {
	if ev.Price <= 0 {
		return Fill{}, fmt.Errorf("paper: invalid price %v", ev.Price)
	}

	p.mu.Lock()
	fill := Fill{
		Symbol:   ev.Symbol,
		Strategy: ev.Strategy,
		BarTS:    ev.BarTS,
		FilledAt: p.now().UTC(),
		TraceID:  ev.TraceID,
		Event:    ev,
	}
	slip := ev.Price * p.cfg.SlippageBps / 10000

	switch ev.Signal {
	case model.SignalBuy:
		if p.qty > 0 {
			p.mu.Unlock()
			return Fill{}, ErrAlreadyLong
		}
		fill.Side = model.TradeBuy
		fill.Price = ev.Price + slip
		fill.Fee = p.cash * p.cfg.FeeRate
		fill.Qty = (p.cash - fill.Fee) / fill.Price
		p.qty = fill.Qty
		p.cash = 0
	case model.SignalSell:
		if p.qty <= 0 {
			p.mu.Unlock()
			return Fill{}, ErrNoPosition
		}
		fill.Side = model.TradeSell
		fill.Price = ev.Price - slip
		fill.Qty = p.qty
		gross := p.qty * fill.Price
		fill.Fee = gross * p.cfg.FeeRate
		p.cash = gross - fill.Fee
		p.qty = 0
	default:
		p.mu.Unlock()
		return Fill{}, fmt.Errorf("paper: nothing to execute for %s", ev.Signal)
	}
	fill.Slippage = slip
	p.orderSeq++
	fill.OrderID = fmt.Sprintf("PAPER-%06d", p.orderSeq)
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	p.log.Info("paper fill",
		"order_id", fill.OrderID,
		"side", fill.Side,
		"symbol", fill.Symbol,
		"qty", fill.Qty,
		"price", fill.Price,
		"fee", fill.Fee,
		"trace_id", fill.TraceID,
	)

	if p.recorder != nil {
		if err := p.recorder.RecordFill(ctx, fill); err != nil {
			// the simulated account already moved; only persistence failed
			p.log.Error("journal write failed", "order_id", fill.OrderID, "error", err)
		}
	}
	return fill, nil
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Equity marks the account to price.
func (p *PaperExecutor) Equity(price float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash + p.qty*price
}

// Long reports whether a position is open.
func (p *PaperExecutor) Long() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.qty > 0
}
