// Package marketdata retrieves historical bars for the backtester and the
// live loop. Sources are composable: a Binance REST source, a SQLite
// cache-through wrapper, a replay source over cached history, and a guard
// that applies the host retry policy.
package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trading-backtestv1/internal/model"
)

// FetchRequest describes one bar request.
type FetchRequest struct {
	Symbol   string    // "BTC/USDT" or "BTCUSDT"
	Interval string    // Binance interval, e.g. "1m", "1h", "1d"
	Start    time.Time // optional; zero means "the newest Limit bars"
	End      time.Time // optional
	Limit    int       // max bars returned
}

// Source fetches closed bars in ascending time order.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req FetchRequest) ([]model.Bar, error)
}

// NormalizeSymbol converts "btc/usdt" or "BTC-USDT" to the exchange form "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}

// ParseInterval converts a Binance interval ("15m", "4h", "1d", "1w") to a duration.
func ParseInterval(interval string) (time.Duration, error) {
	interval = strings.TrimSpace(interval)
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch interval[len(interval)-1] {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid interval %q", interval)
}

// newest returns the last n bars (all when n <= 0).
func newest(bars []model.Bar, n int) []model.Bar {
	if n > 0 && len(bars) > n {
		return bars[len(bars)-n:]
	}
	return bars
}
