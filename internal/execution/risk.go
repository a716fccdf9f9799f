package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"trading-backtestv1/internal/model"
)

// ErrRiskLimit is returned when a buy is blocked by the risk limits.
var ErrRiskLimit = errors.New("risk limit reached")

// RiskLimits bounds the paper account. Zero disables a limit.
type RiskLimits struct {
	MaxDrawdownPct  float64 `mapstructure:"max_drawdown_pct"`   // from peak equity, 0-100
	MaxDailyLossPct float64 `mapstructure:"max_daily_loss_pct"` // from the first equity seen that UTC day
}

// Enabled reports whether any limit is set.
func (l RiskLimits) Enabled() bool { return l.MaxDrawdownPct > 0 || l.MaxDailyLossPct > 0 }

// RiskGuard blocks new entries once the account breaches its limits.
// Sells always pass so an open position can still be closed.
type RiskGuard struct {
	next   Executor
	equity func(price float64) float64
	limits RiskLimits
	log    *slog.Logger

	mu       sync.Mutex
	peak     float64
	day      string
	dayStart float64
}

// NewRiskGuard wraps next. equity marks the account at a price.
func NewRiskGuard(next Executor, equity func(price float64) float64, limits RiskLimits, logger *slog.Logger) *RiskGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &RiskGuard{next: next, equity: equity, limits: limits, log: logger.With("component", "risk")}
}

func (g *RiskGuard) Execute(ctx context.Context, ev model.SignalEvent) (Fill, error) {
	if err := g.check(ev); err != nil && ev.Signal == model.SignalBuy {
		g.log.Warn("buy blocked", "symbol", ev.Symbol, "reason", err.Error(), "trace_id", ev.TraceID)
		return Fill{}, err
	}
	return g.next.Execute(ctx, ev)
}

// check marks the account at the event price, tracking the peak and the
// day's opening equity, and reports a breached limit.
func (g *RiskGuard) check(ev model.SignalEvent) error {
	eq := g.equity(ev.Price)

	g.mu.Lock()
	defer g.mu.Unlock()

	if eq > g.peak {
		g.peak = eq
	}
	if day := ev.BarTS.UTC().Format("2006-01-02"); day != g.day {
		g.day = day
		g.dayStart = eq
	}

	if g.limits.MaxDrawdownPct > 0 && g.peak > 0 {
		if dd := (g.peak - eq) / g.peak * 100; dd > g.limits.MaxDrawdownPct {
			return fmt.Errorf("%w: drawdown %.2f%% exceeds %.2f%%", ErrRiskLimit, dd, g.limits.MaxDrawdownPct)
		}
	}
	if g.limits.MaxDailyLossPct > 0 && g.dayStart > 0 {
		if loss := (g.dayStart - eq) / g.dayStart * 100; loss > g.limits.MaxDailyLossPct {
			return fmt.Errorf("%w: daily loss %.2f%% exceeds %.2f%%", ErrRiskLimit, loss, g.limits.MaxDailyLossPct)
		}
	}
	return nil
}
