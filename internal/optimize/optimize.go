// Package optimize runs an exhaustive parameter grid search. Each
// combination gets its own Strategy and Simulator; nothing mutable is shared
// between runs, so they execute in parallel on a bounded worker pool.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/strategy"
)

// Row is the outcome of one combination.
type Row struct {
	Index   int              `json:"index"`
	Params  strategy.Params  `json:"params"`
	Metrics backtest.Metrics `json:"metrics"`
	Done    bool             `json:"-"` // false when the run was cancelled before this row
}

// Report collects all rows plus the best one.
type Report struct {
	Kind       strategy.Kind `json:"kind"`
	ParamNames []string      `json:"param_names"`
	Rows       []Row         `json:"rows"`
	Best       *Row          `json:"best,omitempty"`
	Skipped    int           `json:"skipped"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Observer is notified as each combination finishes. Calls may come from
// several goroutines at once.
type Observer interface {
	ObserveRun(kind strategy.Kind, d time.Duration, err error)
}

// Optimizer is the grid search driver.
type Optimizer struct {
	Backtest backtest.Config
	Workers  int // <= 0 means GOMAXPROCS
	Logger   *slog.Logger
	Observer Observer
}

// New creates an optimizer with default worker count.
func New(cfg backtest.Config, logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{Backtest: cfg, Logger: logger}
}

// Run evaluates every valid combination of grid against series. When ctx
// is cancelled between combinations, Run returns the rows finished so far
// together with the context error.
func (o *Optimizer) Run(ctx context.Context, series model.Series, grid Grid) (Report, error) {
	start := time.Now()
	if err := o.Backtest.Validate(); err != nil {
		return Report{}, err
	}
	if err := grid.Validate(); err != nil {
		return Report{}, err
	}

	combos, skipped := grid.Combinations()
	report := Report{
		Kind:       grid.Kind,
		ParamNames: grid.ParamNames(),
		Rows:       make([]Row, len(combos)),
		Skipped:    skipped,
	}

	logger := o.logger()
	logger.Info("grid search started",
		"kind", grid.Kind,
		"combinations", len(combos),
		"skipped", skipped,
		"bars", series.Len(),
	)

	workers := o.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, c := range combos {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row, err := o.runOne(grid.Kind, c, series)
			if err != nil {
				return err
			}
			// disjoint index per goroutine
			report.Rows[c.Index] = row
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	report.Rows = finished(report.Rows)
	report.Best = best(report.Rows)
	report.Elapsed = time.Since(start)

	if err != nil {
		logger.Warn("grid search stopped", "completed", len(report.Rows), "error", err)
		return report, err
	}
	attrs := []any{"completed", len(report.Rows), "elapsed", report.Elapsed}
	if report.Best != nil {
		attrs = append(attrs,
			"best_params", report.Best.Params.String(),
			"best_return_pct", report.Best.Metrics.TotalReturnPct,
		)
	}
	logger.Info("grid search finished", attrs...)
	return report, nil
}

func (o *Optimizer) runOne(kind strategy.Kind, c Combination, series model.Series) (Row, error) {
	t := time.Now()
	strat, err := strategy.New(kind, c.Params)
	if err == nil {
		var res backtest.Result
		res, err = backtest.RunStrategy(o.Backtest, strat, series)
		if err == nil {
			if o.Observer != nil {
				o.Observer.ObserveRun(kind, time.Since(t), nil)
			}
			return Row{Index: c.Index, Params: c.Params, Metrics: res.Metrics, Done: true}, nil
		}
	}
	if o.Observer != nil {
		o.Observer.ObserveRun(kind, time.Since(t), err)
	}
	return Row{}, fmt.Errorf("combination %d (%s): %w", c.Index, c.Params, err)
}

func (o *Optimizer) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// finished drops rows that never ran, keeping enumeration order.
func finished(rows []Row) []Row {
	out := rows[:0]
	for _, r := range rows {
		if r.Done {
			out = append(out, r)
		}
	}
	return out
}

// best returns the row with the highest total return; ties go to the
// earliest row in enumeration order.
func best(rows []Row) *Row {
	var b *Row
	for i := range rows {
		if b == nil || rows[i].Metrics.TotalReturnPct > b.Metrics.TotalReturnPct {
			b = &rows[i]
		}
	}
	if b == nil {
		return nil
	}
	cp := *b
	return &cp
}
