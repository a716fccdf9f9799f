package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"trading-backtestv1/internal/model"
)

const (
	binancePageLimit = 1000
	defaultLimit     = 500
)

// BinanceSource fetches spot klines through the public REST API. Requests
// larger than one page are paginated forward by start time. The still-forming
// last kline is dropped so callers only see closed bars.
type BinanceSource struct {
	client   *binance.Client
	pageSize int
	log      *slog.Logger
	now      func() time.Time
}

// NewBinanceSource creates a source. baseURL may be empty for the public
// endpoint; httpClient may be nil.
func NewBinanceSource(baseURL string, httpClient *http.Client, logger *slog.Logger) *BinanceSource {
	client := binance.NewClient("", "")
	if u := strings.TrimSpace(baseURL); u != "" {
		client.BaseURL = u
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	client.HTTPClient = httpClient
	if logger == nil {
		logger = slog.Default()
	}
	return &BinanceSource{
		client:   client,
		pageSize: binancePageLimit,
		log:      logger,
		now:      time.Now,
	}
}

func (s *BinanceSource) Name() string { return "binance" }

func (s *BinanceSource) Fetch(ctx context.Context, req FetchRequest) ([]model.Bar, error) {
	symbol := NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("binance: symbol is required")
	}
	step, err := ParseInterval(req.Interval)
	if err != nil {
		return nil, fmt.Errorf("binance: %w", err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	now := s.now()
	start := req.Start
	if start.IsZero() {
		// one extra bar covers the forming kline dropped below
		start = now.Add(-time.Duration(limit+1) * step).Truncate(step)
	}

	var out []model.Bar
	cursor := start.UnixMilli()
	for len(out) < limit+1 {
		page := min(s.pageSize, limit+1-len(out))
		svc := s.client.NewKlinesService().
			Symbol(symbol).
			Interval(req.Interval).
			StartTime(cursor).
			Limit(page)
		if !req.End.IsZero() {
			svc = svc.EndTime(req.End.UnixMilli())
		}
		klines, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s %s: %w", symbol, req.Interval, err)
		}

		for _, k := range klines {
			if k == nil {
				continue
			}
			bar, err := klineToBar(k)
			if err != nil {
				return nil, fmt.Errorf("binance kline %d: %w", k.OpenTime, err)
			}
			out = append(out, bar)
		}
		s.log.Debug("binance page fetched", "symbol", symbol, "interval", req.Interval, "count", len(klines))

		if len(klines) < page {
			break
		}
		cursor = klines[len(klines)-1].OpenTime + 1
	}

	if n := len(out); n > 0 && out[n-1].TS.Add(step).After(now) {
		out = out[:n-1]
	}
	if req.Start.IsZero() {
		out = newest(out, limit)
	} else if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func klineToBar(k *binance.Kline) (model.Bar, error) {
	var (
		b   = model.Bar{TS: time.UnixMilli(k.OpenTime).UTC()}
		err error
	)
	for _, f := range []struct {
		dst *float64
		src string
	}{
		{&b.Open, k.Open},
		{&b.High, k.High},
		{&b.Low, k.Low},
		{&b.Close, k.Close},
		{&b.Volume, k.Volume},
	} {
		if *f.dst, err = strconv.ParseFloat(f.src, 64); err != nil {
			return model.Bar{}, err
		}
	}
	return b, nil
}
