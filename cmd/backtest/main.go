// cmd/backtest runs one strategy over historical bars and writes the trade
// log, equity curve and an HTML chart.
//
// Usage:
//
//	go run ./cmd/backtest --symbol BTC/USDT --interval 1h --strategy rsi -p period=14
//	go run ./cmd/backtest --offline --sqlite data/bars.db
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/cmdutil"
	"trading-backtestv1/internal/report"
)

func main() {
	app := &cli.App{
		Name:  "backtest",
		Usage: "simulate a trading strategy on historical bars",
		Flags: append(cmdutil.CommonFlags(),
			&cli.BoolFlag{Name: "offline", Usage: "read bars from the SQLite cache only"},
			&cli.BoolFlag{Name: "no-files", Usage: "print the summary without writing reports"},
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
	logger, err := cmdutil.NewLogger("backtest", cfg.LogLevel)
	if err != nil {
		return err
	}
	strat, err := cfg.NewStrategy()
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
	first := series.At(0)
	last, _ := series.Last()
	logger.Info("bars loaded",
		"symbol", cfg.Symbol,
		"interval", cfg.Interval,
		"bars", series.Len(),
		"from", first.TS.Format(time.RFC3339),
		"to", last.TS.Format(time.RFC3339),
	)

	start := time.Now()
	res, err := backtest.RunStrategy(cfg.Backtest, strat, series)
	if err != nil {
		return err
	}
	logger.Info("backtest finished",
		"strategy", res.Strategy,
		"trades", res.Metrics.TradeCount,
		"return_pct", res.Metrics.TotalReturnPct,
		"elapsed", time.Since(start),
	)

	fmt.Print(res.Summary())
	if c.Bool("no-files") {
		return nil
	}

	stem := cmdutil.FileStem(cfg) + "_" + string(strat.Kind())
	outputs := map[string]func(io.Writer) error{
		stem + "_trades.csv": func(w io.Writer) error { return report.WriteTradesCSV(w, res.Trades) },
		stem + "_equity.csv": func(w io.Writer) error { return report.WriteEquityCSV(w, res.Equity) },
		stem + "_chart.html": func(w io.Writer) error {
			title := fmt.Sprintf("%s %s %s", cfg.Symbol, cfg.Interval, res.Strategy)
			return report.RenderChart(w, title, series, &res)
		},
	}
	for name, write := range outputs {
		path := cmdutil.OutputPath(cfg, name)
		if err := report.WriteFile(path, write); err != nil {
			return err
		}
		logger.Info("report written", "path", path)
	}

	path := cmdutil.OutputPath(cfg, stem+"_equity.parquet")
	if err := report.WriteParquet(path, report.EquityRecords(res.Strategy, res.Equity)); err != nil {
		return err
	}
	logger.Info("report written", "path", path)
	return nil
}
