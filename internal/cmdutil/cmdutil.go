// Package cmdutil holds the wiring shared by the command line binaries:
// common flags layered over the config file, logger setup and the market
// data stack.
package cmdutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/logger"
	"trading-backtestv1/internal/marketdata"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/store/sqlite"
)

// ErrNoData is returned when the market data stack produced no bars.
var ErrNoData = errors.New("no market data")

// CommonFlags are accepted by every binary. Set flags override the config
// file and BT_ environment values.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (yaml, toml or json)"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "market symbol, e.g. BTC/USDT"},
		&cli.StringFlag{Name: "interval", Aliases: []string{"i"}, Usage: "bar interval, e.g. 1h"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "number of bars to load"},
		&cli.StringFlag{Name: "strategy", Usage: "rsi, macd, bollinger_rsi or enhanced_trend_rsi"},
		&cli.StringSliceFlag{Name: "param", Aliases: []string{"p"}, Usage: "strategy parameter override name=value (repeatable)"},
		&cli.Float64Flag{Name: "capital", Usage: "initial capital"},
		&cli.Float64Flag{Name: "fee", Usage: "proportional fee rate, e.g. 0.001"},
		&cli.StringFlag{Name: "sqlite", Usage: "bar cache database path"},
		&cli.StringFlag{Name: "binance-url", Usage: "Binance REST base URL"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output directory"},
	}
}

// LoadConfig reads the config file named by --config and applies the set
// flags on top of it.
func LoadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("symbol") {
		cfg.Symbol = c.String("symbol")
	}
	if c.IsSet("interval") {
		cfg.Interval = c.String("interval")
	}
	if c.IsSet("limit") {
		cfg.Limit = c.Int("limit")
	}
	if c.IsSet("strategy") {
		cfg.Strategy.Kind = c.String("strategy")
	}
	if c.IsSet("param") {
		params, err := ParseParams(c.StringSlice("param"))
		if err != nil {
			return nil, err
		}
		if cfg.Strategy.Params == nil {
			cfg.Strategy.Params = make(map[string]float64, len(params))
		}
		for k, v := range params {
			cfg.Strategy.Params[k] = v
		}
	}
	if c.IsSet("capital") {
		cfg.Backtest.InitialCapital = c.Float64("capital")
	}
	if c.IsSet("fee") {
		cfg.Backtest.FeeRate = c.Float64("fee")
	}
	if c.IsSet("sqlite") {
		cfg.SQLitePath = c.String("sqlite")
	}
	if c.IsSet("binance-url") {
		cfg.BinanceBaseURL = c.String("binance-url")
	}
	if c.IsSet("output") {
		cfg.OutputDir = c.String("output")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseParams parses "name=value" pairs.
func ParseParams(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("param %q: want name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", pair, err)
		}
		out[name] = v
	}
	return out, nil
}

// NewLogger builds the JSON logger for service. Logs go to stderr so that
// reports printed on stdout stay clean.
func NewLogger(service, level string) (*slog.Logger, error) {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return logger.New(os.Stderr, service, lvl), nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// OutputPath joins name onto the configured output directory.
func OutputPath(cfg *config.Config, name string) string {
	return filepath.Join(cfg.OutputDir, name)
}

// FileStem is "<SYMBOL>_<interval>", used to name report files.
func FileStem(cfg *config.Config) string {
	return marketdata.NormalizeSymbol(cfg.Symbol) + "_" + cfg.Interval
}

// MarketData is the guarded loader plus the resources behind it.
type MarketData struct {
	Loader  *marketdata.Guarded
	Store   *sqlite.Store
	Breaker *breaker.Breaker
}

// OpenMarketData opens the bar cache and builds the loader. Online it is a
// cache-through Binance source; offline it reads the cache only.
func OpenMarketData(cfg *config.Config, offline bool, log *slog.Logger) (*MarketData, error) {
	store, err := sqlite.Open(cfg.SQLitePath, log)
	if err != nil {
		return nil, err
	}

	var src marketdata.Source
	if offline {
		src = marketdata.NewStoreSource(store)
	} else {
		httpClient := &http.Client{Timeout: 30 * time.Second}
		src = marketdata.NewCachedSource(marketdata.NewBinanceSource(cfg.BinanceBaseURL, httpClient, log), store, log)
	}
	return Guard(cfg, src, store, log), nil
}

// Guard wraps src with the configured retry policy and breaker.
func Guard(cfg *config.Config, src marketdata.Source, store *sqlite.Store, log *slog.Logger) *MarketData {
	cb := breaker.New(cfg.Retry.BreakerFailures, cfg.Retry.BreakerReset)
	policy := marketdata.RetryPolicy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay}
	return &MarketData{
		Loader:  marketdata.NewGuarded(src, policy, cb, log),
		Store:   store,
		Breaker: cb,
	}
}

// Request is the fetch request for the configured market.
func Request(cfg *config.Config) marketdata.FetchRequest {
	return marketdata.FetchRequest{
		Symbol:   marketdata.NormalizeSymbol(cfg.Symbol),
		Interval: cfg.Interval,
		Limit:    cfg.Limit,
	}
}

// LoadSeries loads the configured market. An empty result is ErrNoData.
func (m *MarketData) LoadSeries(ctx context.Context, cfg *config.Config) (model.Series, error) {
	req := Request(cfg)
	series, err := m.Loader.Load(ctx, req)
	if err != nil {
		return model.Series{}, err
	}
	if series.Len() == 0 {
		return model.Series{}, fmt.Errorf("%w for %s %s", ErrNoData, req.Symbol, req.Interval)
	}
	return series, nil
}

// Close releases the bar cache.
func (m *MarketData) Close() error {
	if m.Store == nil {
		return nil
	}
	return m.Store.Close()
}
