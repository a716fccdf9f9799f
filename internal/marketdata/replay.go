package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trading-backtestv1/internal/model"
)

// ErrReplayDone is returned once every stored bar has been revealed.
var ErrReplayDone = errors.New("replay finished")

// ReplaySource replays stored history to the live loop. Each Fetch reveals
// Step more bars and returns the newest Limit of those revealed so far, as
// though the market had just closed the last one.
type ReplaySource struct {
	store    model.BarReader
	symbol   string
	interval string
	warmup   int
	step     int
	log      *slog.Logger

	mu       sync.Mutex
	bars     []model.Bar
	loaded   bool
	revealed int
}

// NewReplaySource replays symbol/interval from store. The first Fetch
// reveals warmup bars so strategies start with enough history.
func NewReplaySource(store model.BarReader, symbol, interval string, warmup, step int, logger *slog.Logger) *ReplaySource {
	if step <= 0 {
		step = 1
	}
	if warmup < 1 {
		warmup = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplaySource{
		store:    store,
		symbol:   NormalizeSymbol(symbol),
		interval: interval,
		warmup:   warmup,
		step:     step,
		log:      logger,
	}
}

func (r *ReplaySource) Name() string { return "replay" }

func (r *ReplaySource) Fetch(ctx context.Context, req FetchRequest) ([]model.Bar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		bars, err := r.store.ReadBars(ctx, r.symbol, r.interval, time.Time{}, 0)
		if err != nil {
			return nil, fmt.Errorf("replay load: %w", err)
		}
		r.bars = bars
		r.loaded = true
		r.log.Info("replay loaded", "symbol", r.symbol, "interval", r.interval, "bars", len(bars))
	}

	if r.revealed >= len(r.bars) {
		return nil, ErrReplayDone
	}
	if r.revealed == 0 {
		r.revealed = min(r.warmup, len(r.bars))
	} else {
		r.revealed = min(r.revealed+r.step, len(r.bars))
	}
	return append([]model.Bar(nil), newest(r.bars[:r.revealed], req.Limit)...), nil
}

// Progress returns revealed and total bar counts.
func (r *ReplaySource) Progress() (revealed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revealed, len(r.bars)
}

// Pace returns the wait between replayed bars at the given speed multiplier;
// zero speed means no wait. Waits are capped at ceiling.
func Pace(interval string, speed float64, ceiling time.Duration) time.Duration {
	if speed <= 0 {
		return 0
	}
	step, err := ParseInterval(interval)
	if err != nil {
		return 0
	}
	d := time.Duration(float64(step) / speed)
	if ceiling > 0 && d > ceiling {
		d = ceiling
	}
	return d
}
