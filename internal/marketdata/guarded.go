package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/model"
)

// RetryPolicy bounds how hard Guarded tries before giving up.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Guarded applies the retry policy and a circuit breaker to a source.
type Guarded struct {
	src    Source
	cb     *breaker.Breaker
	policy RetryPolicy
	log    *slog.Logger
}

// NewGuarded wraps src. A nil breaker gets a default one.
func NewGuarded(src Source, policy RetryPolicy, cb *breaker.Breaker, logger *slog.Logger) *Guarded {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if cb == nil {
		cb = breaker.New(5, time.Minute)
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guarded{src: src, cb: cb, policy: policy, log: logger}
	cb.OnStateChange(func(from, to breaker.State) {
		g.log.Warn("market data breaker state change", "source", src.Name(), "from", from.String(), "to", to.String())
	})
	return g
}

func (g *Guarded) Name() string { return g.src.Name() }

// Fetch retries transport failures up to the policy's attempt count. An open
// breaker, an exhausted replay or caller cancellation ends the loop early.
func (g *Guarded) Fetch(ctx context.Context, req FetchRequest) ([]model.Bar, error) {
	var lastErr error
	for attempt := 1; attempt <= g.policy.Attempts; attempt++ {
		var bars []model.Bar
		err := g.cb.Execute(ctx, func(ctx context.Context) error {
			var err error
			bars, err = g.src.Fetch(ctx, req)
			return err
		})
		if err == nil {
			return bars, nil
		}
		lastErr = err
		if errors.Is(err, breaker.ErrOpen) || errors.Is(err, ErrReplayDone) || ctx.Err() != nil {
			break
		}
		if attempt < g.policy.Attempts {
			g.log.Warn("market data fetch failed, retrying",
				"source", g.src.Name(), "attempt", attempt, "delay", g.policy.Delay, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.policy.Delay):
			}
		}
	}
	return nil, fmt.Errorf("%s: %w", g.src.Name(), lastErr)
}

// Load fetches bars and builds a series. Transport failures are logged and
// surface as an empty series; malformed bars are returned as an error.
func (g *Guarded) Load(ctx context.Context, req FetchRequest) (model.Series, error) {
	bars, err := g.Fetch(ctx, req)
	if err != nil {
		if errors.Is(err, ErrReplayDone) {
			return model.Series{}, err
		}
		g.log.Error("market data unavailable", "symbol", req.Symbol, "interval", req.Interval, "error", err)
		return model.Series{}, nil
	}
	series, err := model.NewSeries(bars)
	if err != nil {
		return model.Series{}, fmt.Errorf("%s %s: %w", req.Symbol, req.Interval, err)
	}
	return series, nil
}
