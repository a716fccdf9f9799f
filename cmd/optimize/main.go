// cmd/optimize grid-searches strategy parameters over historical bars and
// writes every combination's metrics as CSV and Parquet.
//
// Usage:
//
//	go run ./cmd/optimize                                  # default RSI grid
//	go run ./cmd/optimize --strategy macd -r fast=8:14:2 -r slow=20,26,30
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/cmdutil"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/optimize"
	"trading-backtestv1/internal/report"
	"trading-backtestv1/internal/strategy"
)

func main() {
	app := &cli.App{
		Name:  "optimize",
		Usage: "grid search strategy parameters",
		Flags: append(cmdutil.CommonFlags(),
			&cli.StringSliceFlag{Name: "range", Aliases: []string{"r"}, Usage: "parameter range name=a,b,c or name=from:to:step (repeatable)"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "parallel backtests (0 = GOMAXPROCS)"},
			&cli.IntFlag{Name: "top", Value: 10, Usage: "rows to print"},
			&cli.BoolFlag{Name: "offline", Usage: "read bars from the SQLite cache only"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics while the search runs"},
		),
		Action: run,
	}

	ctx, cancel := cmdutil.SignalContext(context.Background())
	defer cancel()
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := cmdutil.LoadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	logger, err := cmdutil.NewLogger("optimize", cfg.LogLevel)
	if err != nil {
		return err
	}

	grid, err := buildGrid(cfg, c.StringSlice("range"))
	if err != nil {
		return err
	}

	md, err := cmdutil.OpenMarketData(cfg, c.Bool("offline"), logger)
	if err != nil {
		return err
	}
	defer md.Close()

	series, err := md.LoadSeries(c.Context, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	if addr := c.String("metrics-addr"); addr != "" {
		srv := metrics.NewServer(addr, m, nil, nil, logger)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(ctx)
		}()
	}

	opt := optimize.New(cfg.Backtest, logger)
	opt.Workers = cfg.Workers
	opt.Observer = m

	rep, runErr := opt.Run(c.Context, series, grid)
	if runErr != nil && len(rep.Rows) == 0 {
		return runErr
	}

	printReport(os.Stdout, &rep, c.Int("top"))

	if err := writeReports(cfg, &rep, logger); err != nil {
		return err
	}
	return runErr
}

// buildGrid uses the flag ranges when given. Without ranges RSI falls back
// to the classic sweep and other kinds run once. Configured params pin the
// knobs that are not swept.
func buildGrid(cfg *config.Config, exprs []string) (optimize.Grid, error) {
	kind, err := cfg.StrategyKind()
	if err != nil {
		return optimize.Grid{}, err
	}
	base := strategy.Params(cfg.Strategy.Params).Clone()
	if len(exprs) == 0 && kind == strategy.KindRSI {
		grid := optimize.DefaultRSIGrid()
		grid.Base = base
		return grid, grid.Validate()
	}
	grid := optimize.Grid{Kind: kind, Base: base}
	for _, expr := range exprs {
		r, err := optimize.ParseRange(expr)
		if err != nil {
			return optimize.Grid{}, err
		}
		grid.Ranges = append(grid.Ranges, r)
	}
	return grid, grid.Validate()
}

func printReport(w io.Writer, rep *optimize.Report, top int) {
	rows := append([]optimize.Row(nil), rep.Rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Metrics.TotalReturnPct > rows[j].Metrics.TotalReturnPct
	})
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}

	fmt.Fprintf(w, "%s grid: %d combinations, %d skipped, %s\n\n",
		rep.Kind, len(rep.Rows), rep.Skipped, rep.Elapsed.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "params\treturn %\tfinal equity\ttrades\twin %\tmax dd %\tsharpe\t")
	for _, r := range rows {
		m := r.Metrics
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%d\t%.1f\t%.2f\t%.3f\t\n",
			r.Params.String(), m.TotalReturnPct, m.FinalEquity, m.TradeCount, m.WinRatePct, m.MaxDrawdownPct, m.SharpeRatio)
	}
	tw.Flush()

	if rep.Best != nil {
		fmt.Fprintf(w, "\nbest: %s return %.2f%%\n", rep.Best.Params.String(), rep.Best.Metrics.TotalReturnPct)
	}
}

func writeReports(cfg *config.Config, rep *optimize.Report, logger *slog.Logger) error {
	stem := cmdutil.FileStem(cfg) + "_" + string(rep.Kind) + "_optimization"

	csvPath := cmdutil.OutputPath(cfg, stem+".csv")
	if err := report.WriteFile(csvPath, func(w io.Writer) error { return report.WriteOptimizationCSV(w, rep) }); err != nil {
		return err
	}
	logger.Info("report written", "path", csvPath)

	pqPath := cmdutil.OutputPath(cfg, stem+".parquet")
	if err := report.WriteParquet(pqPath, report.OptimizationRecords(rep)); err != nil {
		return err
	}
	logger.Info("report written", "path", pqPath)
	return nil
}
