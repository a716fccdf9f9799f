// Package config loads application settings from defaults, an optional
// config file and BT_-prefixed environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"trading-backtestv1/internal/backtest"
	"trading-backtestv1/internal/execution"
	"trading-backtestv1/internal/strategy"
)

// EnvPrefix is prepended to every environment override, e.g. BT_SYMBOL or
// BT_BACKTEST_FEE_RATE.
const EnvPrefix = "BT"

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid config")

// StrategyConfig selects a strategy kind and overrides its parameters.
type StrategyConfig struct {
	Kind   string             `mapstructure:"kind"`
	Params map[string]float64 `mapstructure:"params"`
}

// RetryConfig is the host retry policy around the market data source.
type RetryConfig struct {
	Attempts        int           `mapstructure:"attempts"`
	Delay           time.Duration `mapstructure:"delay"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerReset    time.Duration `mapstructure:"breaker_reset"`
}

// Config holds all application configuration.
type Config struct {
	// Market
	Symbol   string `mapstructure:"symbol"`
	Interval string `mapstructure:"interval"`
	Limit    int    `mapstructure:"limit"`

	Strategy StrategyConfig  `mapstructure:"strategy"`
	Backtest backtest.Config `mapstructure:"backtest"`
	Workers  int             `mapstructure:"workers"`

	// Infrastructure
	BinanceBaseURL string      `mapstructure:"binance_base_url"`
	SQLitePath     string      `mapstructure:"sqlite_path"`
	RedisAddr      string      `mapstructure:"redis_addr"`
	RedisPassword  string      `mapstructure:"redis_password"`
	HTTPAddr       string      `mapstructure:"http_addr"` // /metrics and /ws
	Retry          RetryConfig `mapstructure:"retry"`

	// Live loop
	PollInterval time.Duration        `mapstructure:"poll_interval"`
	PaperTrade   bool                 `mapstructure:"paper_trade"`
	Risk         execution.RiskLimits `mapstructure:"risk"`

	// Alerts
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
	WebhookURL     string `mapstructure:"webhook_url"`

	LogLevel  string `mapstructure:"log_level"`
	OutputDir string `mapstructure:"output_dir"`
}

func setDefaults(v *viper.Viper) {
	bt := backtest.DefaultConfig()

	v.SetDefault("symbol", "BTC/USDT")
	v.SetDefault("interval", "1h")
	v.SetDefault("limit", 1000)
	v.SetDefault("strategy.kind", string(strategy.KindRSI))
	v.SetDefault("strategy.params", map[string]float64{})
	v.SetDefault("backtest.initial_capital", bt.InitialCapital)
	v.SetDefault("backtest.fee_rate", bt.FeeRate)
	v.SetDefault("workers", 0)

	v.SetDefault("binance_base_url", "")
	v.SetDefault("sqlite_path", "data/bars.db")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("http_addr", ":9090")
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 5*time.Second)
	v.SetDefault("retry.breaker_failures", 5)
	v.SetDefault("retry.breaker_reset", time.Minute)

	v.SetDefault("poll_interval", 10*time.Second)
	v.SetDefault("paper_trade", true)
	v.SetDefault("risk.max_drawdown_pct", 0)
	v.SetDefault("risk.max_daily_loss_pct", 0)

	v.SetDefault("telegram_token", "")
	v.SetDefault("telegram_chat_id", "")
	v.SetDefault("webhook_url", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("output_dir", "results")
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply. The file type follows its extension
// (yaml, toml, json).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// StrategyKind resolves the configured kind.
func (c *Config) StrategyKind() (strategy.Kind, error) {
	return strategy.ParseKind(c.Strategy.Kind)
}

// NewStrategy builds the configured strategy.
func (c *Config) NewStrategy() (strategy.Strategy, error) {
	kind, err := c.StrategyKind()
	if err != nil {
		return nil, err
	}
	return strategy.New(kind, c.Strategy.Params)
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalid)
	}
	if c.Interval == "" {
		return fmt.Errorf("%w: interval is required", ErrInvalid)
	}
	if c.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalid, c.Limit)
	}
	if err := c.Backtest.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.NewStrategy(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalid)
	}
	if c.Risk.MaxDrawdownPct < 0 || c.Risk.MaxDailyLossPct < 0 {
		return fmt.Errorf("%w: risk limits must not be negative", ErrInvalid)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("%w: retry.attempts must be at least 1", ErrInvalid)
	}
	return nil
}
