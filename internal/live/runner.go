// Package live runs a strategy against fresh market data on a fixed poll
// interval. Each tick loads the newest bars, evaluates the latest signal and
// hands actionable signals to the alerting, execution and publishing
// collaborators. The core strategy code never sees any of them.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trading-backtestv1/internal/execution"
	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/marketdata"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/notification"
	"trading-backtestv1/internal/strategy"
)

// Loader returns the newest bars as a series. Transport failures surface as
// an empty series; marketdata.Guarded satisfies it.
type Loader interface {
	Load(ctx context.Context, req marketdata.FetchRequest) (model.Series, error)
}

// Config sets the market and cadence of the loop.
type Config struct {
	Symbol       string
	Interval     string
	Limit        int
	PollInterval time.Duration
}

// Runner is the live polling loop. Optional collaborators may be nil.
type Runner struct {
	cfg      Config
	strat    strategy.Strategy
	data     Loader
	notifier notification.Notifier

	Executor  execution.Executor
	Publisher model.SignalPublisher
	Hub       *Hub
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	// Equity marks the paper account for the equity gauge; optional.
	Equity func(price float64) float64

	log *slog.Logger
	now func() time.Time

	lastActed time.Time
}

// NewRunner creates a loop for strat over data.
func NewRunner(cfg Config, strat strategy.Strategy, data Loader, notifier notification.Notifier, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = notification.NewLogNotifier(log)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	cfg.Symbol = marketdata.NormalizeSymbol(cfg.Symbol)
	return &Runner{
		cfg:      cfg,
		strat:    strat,
		data:     data,
		notifier: notifier,
		log:      log.With("component", "live"),
		now:      time.Now,
	}
}

// Run ticks immediately and then every PollInterval until ctx ends or the
// data source reports a finished replay.
func (r *Runner) Run(ctx context.Context) error {
	r.notify(ctx, notification.Info("Bot started",
		fmt.Sprintf("%s on %s %s, polling every %s", r.strat.Name(), r.cfg.Symbol, r.cfg.Interval, r.cfg.PollInterval)))

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(ctx); err != nil {
			if errors.Is(err, marketdata.ErrReplayDone) {
				r.log.Info("replay finished")
				r.notify(context.WithoutCancel(ctx), notification.Info("Bot stopped", "replay finished"))
				return nil
			}
			if ctx.Err() == nil {
				r.log.Error("tick failed", "error", err)
				r.notify(ctx, notification.Critical("Tick failed", err))
			}
		}

		select {
		case <-ctx.Done():
			r.notify(context.WithoutCancel(ctx), notification.Info("Bot stopped", ctx.Err().Error()))
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one iteration and returns the evaluated event. A signal is acted
// on at most once per bar.
func (r *Runner) Tick(ctx context.Context) (model.SignalEvent, error) {
	now := r.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(r.cfg.Symbol, now))
	if r.Metrics != nil {
		r.Metrics.Ticks.Inc()
	}

	start := time.Now()
	series, err := r.data.Load(ctx, marketdata.FetchRequest{
		Symbol:   r.cfg.Symbol,
		Interval: r.cfg.Interval,
		Limit:    r.cfg.Limit,
	})
	if r.Metrics != nil {
		r.Metrics.FetchDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return model.SignalEvent{}, err
	}

	last, ok := series.Last()
	if !ok {
		if r.Metrics != nil {
			r.Metrics.FetchFailures.Inc()
		}
		r.log.Warn("no market data this tick", logger.LogWithTrace(ctx)...)
		return model.SignalEvent{}, nil
	}
	if r.Health != nil {
		r.Health.RecordTick(now, last.TS)
	}
	if r.Metrics != nil {
		r.Metrics.BarLag.Set(now.Sub(last.TS).Seconds())
	}

	ev := model.SignalEvent{
		Symbol:   r.cfg.Symbol,
		Interval: r.cfg.Interval,
		Strategy: r.strat.Name(),
		Signal:   strategy.LatestSignal(r.strat, series),
		Price:    last.Close,
		BarTS:    last.TS,
		TraceID:  logger.TraceID(ctx),
	}

	attrs := append([]any{
		"signal", ev.Signal.String(),
		"price", ev.Price,
		"bar_ts", ev.BarTS,
		"bars", series.Len(),
	}, logger.LogWithTrace(ctx)...)
	r.log.Info("tick", attrs...)

	if ev.Signal == model.SignalNone || !last.TS.After(r.lastActed) {
		return ev, nil
	}
	r.lastActed = last.TS
	r.act(ctx, ev)
	return ev, nil
}

func (r *Runner) act(ctx context.Context, ev model.SignalEvent) {
	if r.Metrics != nil {
		r.Metrics.ObserveSignal(ev)
	}
	r.notify(ctx, notification.SignalAlert(ev))

	if r.Executor != nil {
		fill, err := r.Executor.Execute(ctx, ev)
		switch {
		case err == nil:
			if r.Metrics != nil {
				r.Metrics.PaperFills.WithLabelValues(string(fill.Side)).Inc()
			}
		case errors.Is(err, execution.ErrNoPosition), errors.Is(err, execution.ErrAlreadyLong), errors.Is(err, execution.ErrRiskLimit):
			r.log.Info("signal ignored by executor", "reason", err.Error(), "trace_id", ev.TraceID)
		default:
			r.log.Error("execution failed", "error", err, "trace_id", ev.TraceID)
		}
		if r.Metrics != nil && r.Equity != nil {
			r.Metrics.PaperEquity.Set(r.Equity(ev.Price))
		}
	}

	if r.Publisher != nil {
		if err := r.Publisher.Publish(ctx, ev); err != nil {
			if r.Metrics != nil {
				r.Metrics.PublishErrors.Inc()
			}
			r.log.Warn("signal publish failed", "error", err, "trace_id", ev.TraceID)
		}
	}

	if r.Hub != nil {
		r.Hub.Broadcast(ev)
	}
}

func (r *Runner) notify(ctx context.Context, a notification.Alert) {
	if err := r.notifier.Send(ctx, a); err != nil {
		r.log.Warn("notification failed", "title", a.Title, "error", err)
	}
}
