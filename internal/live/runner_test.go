package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/execution"
	"trading-backtestv1/internal/marketdata"
	"trading-backtestv1/internal/metrics"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/notification"
	"trading-backtestv1/internal/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fixedStrategy emits sig on the last bar only.
type fixedStrategy struct{ sig model.Signal }

func (f *fixedStrategy) Name() string            { return "FIXED" }
func (f *fixedStrategy) Kind() strategy.Kind     { return strategy.KindRSI }
func (f *fixedStrategy) Params() strategy.Params { return strategy.Params{} }
func (f *fixedStrategy) Lookback() int           { return 0 }
func (f *fixedStrategy) Analyze(s model.Series) []model.Signal {
	out := make([]model.Signal, s.Len())
	if len(out) > 0 {
		out[len(out)-1] = f.sig
	}
	return out
}

// scriptLoader returns one queued result per call; the last one repeats.
type scriptLoader struct {
	mu      sync.Mutex
	results []loadResult
	calls   int
	reqs    []marketdata.FetchRequest
}

type loadResult struct {
	series model.Series
	err    error
}

func (s *scriptLoader) Load(_ context.Context, req marketdata.FetchRequest) (model.Series, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return r.series, r.err
}

func bars(n int, lastClose float64) model.Series {
	out := make([]model.Bar, n)
	for i := range out {
		out[i] = model.Bar{TS: t0.Add(time.Duration(i) * time.Hour), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	}
	out[n-1].Close = lastClose
	return model.MustSeries(out)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (r *recordingNotifier) Send(_ context.Context, a notification.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, a := range r.alerts {
		out = append(out, a.Title)
	}
	return out
}

type recordingPublisher struct {
	events []model.SignalEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.SignalEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func TestRunner_TickActsOnSignal(t *testing.T) {
	ctx := context.Background()
	loader := &scriptLoader{results: []loadResult{{series: bars(5, 105)}}}
	notes := &recordingNotifier{}
	pub := &recordingPublisher{}
	paper := execution.NewPaperExecutor(execution.PaperConfig{InitialCash: 1000}, nil, quiet())
	hub := NewHub(quiet())

	r := NewRunner(Config{Symbol: "BTC/USDT", Interval: "1h", Limit: 50}, &fixedStrategy{sig: model.SignalBuy}, loader, notes, quiet())
	r.Executor = paper
	r.Publisher = pub
	r.Hub = hub
	r.Metrics = metrics.New()
	r.Health = metrics.NewHealthStatus()
	r.Equity = paper.Equity
	r.now = func() time.Time { return t0.Add(5 * time.Hour) }

	ev, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SignalBuy, ev.Signal)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.Equal(t, 105.0, ev.Price)
	assert.Equal(t, t0.Add(4*time.Hour), ev.BarTS)
	assert.NotEmpty(t, ev.TraceID)

	assert.Equal(t, marketdata.FetchRequest{Symbol: "BTCUSDT", Interval: "1h", Limit: 50}, loader.reqs[0])
	assert.Equal(t, []string{"BUY signal BTCUSDT"}, notes.titles())
	assert.True(t, paper.Long())
	require.Len(t, pub.events, 1)
	assert.Equal(t, ev, pub.events[0])
	assert.Equal(t, ev, hub.latest[ChannelName("BTCUSDT", "1h")].Data)
}

func TestRunner_ActsOncePerBar(t *testing.T) {
	ctx := context.Background()
	loader := &scriptLoader{results: []loadResult{{series: bars(5, 105)}, {series: bars(5, 105)}, {series: bars(6, 90)}}}
	notes := &recordingNotifier{}
	strat := &fixedStrategy{sig: model.SignalBuy}
	r := NewRunner(Config{Symbol: "BTCUSDT", Interval: "1h"}, strat, loader, notes, quiet())

	_, err := r.Tick(ctx)
	require.NoError(t, err)
	ev, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SignalBuy, ev.Signal, "signal still reported")
	assert.Len(t, notes.titles(), 1, "but only acted on once")

	strat.sig = model.SignalSell
	_, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BUY signal BTCUSDT", "SELL signal BTCUSDT"}, notes.titles())
}

func TestRunner_NoneSignalIsQuiet(t *testing.T) {
	loader := &scriptLoader{results: []loadResult{{series: bars(5, 100)}}}
	notes := &recordingNotifier{}
	pub := &recordingPublisher{}
	r := NewRunner(Config{Symbol: "BTCUSDT", Interval: "1h"}, &fixedStrategy{}, loader, notes, quiet())
	r.Publisher = pub

	ev, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SignalNone, ev.Signal)
	assert.Empty(t, notes.titles())
	assert.Empty(t, pub.events)
}

func TestRunner_EmptySeries(t *testing.T) {
	loader := &scriptLoader{results: []loadResult{{}}}
	r := NewRunner(Config{Symbol: "BTCUSDT", Interval: "1h"}, &fixedStrategy{sig: model.SignalBuy}, loader, &recordingNotifier{}, quiet())
	r.Metrics = metrics.New()

	ev, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.SignalEvent{}, ev)
}

func TestRunner_PublishFailureDoesNotStopLoop(t *testing.T) {
	loader := &scriptLoader{results: []loadResult{{series: bars(5, 105)}}}
	pub := &recordingPublisher{err: errors.New("redis down")}
	r := NewRunner(Config{Symbol: "BTCUSDT", Interval: "1h"}, &fixedStrategy{sig: model.SignalBuy}, loader, &recordingNotifier{}, quiet())
	r.Publisher = pub
	r.Metrics = metrics.New()

	_, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, pub.events, 1)
}

func TestRunner_RunStopsWhenReplayEnds(t *testing.T) {
	loader := &scriptLoader{results: []loadResult{
		{series: bars(5, 105)},
		{series: bars(6, 106)},
		{err: marketdata.ErrReplayDone},
	}}
	notes := &recordingNotifier{}
	r := NewRunner(Config{Symbol: "BTCUSDT", Interval: "1h", PollInterval: time.Millisecond},
		&fixedStrategy{sig: model.SignalBuy}, loader, notes, quiet())

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after replay finished")
	}
	assert.Equal(t, []string{"Bot started", "BUY signal BTCUSDT", "BUY signal BTCUSDT", "Bot stopped"}, notes.titles())
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	loader := &scriptLoader{results: []loadResult{{series: bars(5, 100)}}}
	notes := &recordingNotifier{}
	r := NewRunner(Config{Symbol: "BTCUSDT", Interval: "1h", PollInterval: time.Hour},
		&fixedStrategy{}, loader, notes, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		loader.mu.Lock()
		defer loader.mu.Unlock()
		return loader.calls == 1
	}, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop on cancel")
	}
	assert.Equal(t, []string{"Bot started", "Bot stopped"}, notes.titles())
}

func TestRunner_TickErrorIsReported(t *testing.T) {
	loader := &scriptLoader{results: []loadResult{{err: model.ErrMalformedBar}}}
	r := NewRunner(Config{Symbol: "BTCUSDT", Interval: "1h"}, &fixedStrategy{}, loader, &recordingNotifier{}, quiet())

	_, err := r.Tick(context.Background())
	assert.ErrorIs(t, err, model.ErrMalformedBar)
}
