// cmd/bot runs the live signal loop: it polls bars, evaluates the latest
// signal, alerts, paper-trades and fans the signal out to Redis and
// websocket clients.
//
// Usage:
//
//	go run ./cmd/bot --symbol BTC/USDT --interval 1h --poll 1m
//	go run ./cmd/bot --replay --speed 3600    # drive the loop from cached bars
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"trading-backtestv1/config"
	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/cmdutil"
	"trading-backtestv1/internal/execution"
	"trading-backtestv1/internal/live"
	"trading-backtestv1/internal/marketdata"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/notification"
	"trading-backtestv1/internal/store/redis"
	"trading-backtestv1/internal/store/sqlite"
)

const (
	livenessInterval = 10 * time.Second
	shutdownTimeout  = 5 * time.Second
	maxReplayPace    = 5 * time.Second
)

func main() {
	app := &cli.App{
		Name:  "bot",
		Usage: "live strategy signal loop",
		Flags: append(cmdutil.CommonFlags(),
			&cli.DurationFlag{Name: "poll", Usage: "poll interval"},
			&cli.StringFlag{Name: "http", Usage: "listen address for /metrics, /healthz and /ws"},
			&cli.StringFlag{Name: "redis", Usage: "Redis address; empty disables publishing"},
			&cli.BoolFlag{Name: "paper", Value: true, Usage: "paper-trade signals"},
			&cli.BoolFlag{Name: "replay", Usage: "replay cached bars instead of polling Binance"},
			&cli.IntFlag{Name: "warmup", Value: 200, Usage: "bars revealed on the first replay tick"},
			&cli.Float64Flag{Name: "speed", Usage: "replay speed multiplier over the bar interval (0 = as fast as possible)"},
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
	if c.IsSet("poll") {
		cfg.PollInterval = c.Duration("poll")
	}
	if c.IsSet("http") {
		cfg.HTTPAddr = c.String("http")
	}
	if c.IsSet("redis") {
		cfg.RedisAddr = c.String("redis")
	}
	if c.IsSet("paper") {
		cfg.PaperTrade = c.Bool("paper")
	}

	logger, err := cmdutil.NewLogger("bot", cfg.LogLevel)
	if err != nil {
		return err
	}
	strat, err := cfg.NewStrategy()
	if err != nil {
		return err
	}

	ctx := c.Context
	prom := metrics.New()
	health := metrics.NewHealthStatus()

	// ---- Market data ----
	var md *cmdutil.MarketData
	if c.Bool("replay") {
		store, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return err
		}
		req := cmdutil.Request(cfg)
		src := marketdata.NewReplaySource(store, req.Symbol, req.Interval, c.Int("warmup"), 1, logger)
		md = cmdutil.Guard(cfg, src, store, logger)
		cfg.PollInterval = max(marketdata.Pace(cfg.Interval, c.Float64("speed"), maxReplayPace), time.Millisecond)
		logger.Info("replay mode", "warmup", c.Int("warmup"), "pace", cfg.PollInterval)
	} else {
		md, err = cmdutil.OpenMarketData(cfg, false, logger)
		if err != nil {
			return err
		}
	}
	defer md.Close()
	prom.TrackBreaker("marketdata", md.Breaker)
	health.CheckSQLite(ctx, md.Store.DB())

	// ---- Alerts ----
	notifier := buildNotifier(cfg, logger)

	runner := live.NewRunner(live.Config{
		Symbol:       cfg.Symbol,
		Interval:     cfg.Interval,
		Limit:        cfg.Limit,
		PollInterval: cfg.PollInterval,
	}, strat, md.Loader, notifier, logger)
	runner.Metrics = prom
	runner.Health = health

	// ---- Paper trading ----
	if cfg.PaperTrade {
		journal, err := execution.OpenJournal(cfg.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer journal.Close()
		paper := execution.NewPaperExecutor(execution.PaperConfig{
			InitialCash: cfg.Backtest.InitialCapital,
			FeeRate:     cfg.Backtest.FeeRate,
		}, journal, logger)
		runner.Executor = paper
		runner.Equity = paper.Equity
		if cfg.Risk.Enabled() {
			runner.Executor = execution.NewRiskGuard(paper, paper.Equity, cfg.Risk, logger)
		}
		prom.PaperEquity.Set(cfg.Backtest.InitialCapital)
	}

	// ---- Redis publisher (optional) ----
	var publisher *redis.Publisher
	if cfg.RedisAddr != "" {
		cb := breaker.New(cfg.Retry.BreakerFailures, 10*time.Second)
		prom.TrackBreaker("redis", cb)
		publisher, err = redis.New(redis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, cb, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without publishing", "addr", cfg.RedisAddr, "error", err)
			health.RedisEnabled = true
		} else {
			defer publisher.Close()
			publisher.OnBuffer = prom.BufferedEvents.Inc
			runner.Publisher = publisher
			health.CheckRedis(ctx, publisher.Client())
		}
	}
	if publisher != nil {
		health.StartLivenessChecker(ctx, publisher.Client(), md.Store.DB(), livenessInterval)
	} else {
		health.StartLivenessChecker(ctx, nil, md.Store.DB(), livenessInterval)
	}

	// ---- Websocket hub + HTTP ----
	hub := live.NewHub(logger)
	hub.OnDrop = prom.WSDropped.Inc
	hub.OnClients = func(n int) { prom.WSClients.Set(float64(n)) }
	runner.Hub = hub
	defer hub.Close()

	srv := metrics.NewServer(cfg.HTTPAddr, prom, health, map[string]http.Handler{"/ws": hub}, logger)
	srv.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(stopCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}()

	logger.Info("bot starting",
		"symbol", cfg.Symbol,
		"interval", cfg.Interval,
		"strategy", strat.Name(),
		"poll", cfg.PollInterval,
		"paper", cfg.PaperTrade,
		"redis", publisher != nil,
	)
	return runner.Run(ctx)
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) notification.Notifier {
	notifiers := notification.Multi{notification.NewLogNotifier(logger)}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger))
		logger.Info("telegram alerts enabled")
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL, logger))
		logger.Info("webhook alerts enabled", "url", cfg.WebhookURL)
	}
	return notifiers
}
