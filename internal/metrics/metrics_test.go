package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/strategy"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun(strategy.KindRSI, 10*time.Millisecond, nil)
	m.ObserveRun(strategy.KindRSI, time.Millisecond, nil)
	m.ObserveRun(strategy.KindMACD, time.Millisecond, fmt.Errorf("fast=30: %w", strategy.ErrInvalidParams))
	m.ObserveRun(strategy.KindMACD, time.Millisecond, errors.New("boom"))

	out := scrape(t, m)
	assert.Contains(t, out, `backtest_runs_total{kind="rsi",result="ok"} 2`)
	assert.Contains(t, out, `backtest_runs_total{kind="macd",result="invalid"} 1`)
	assert.Contains(t, out, `backtest_runs_total{kind="macd",result="error"} 1`)
	assert.Contains(t, out, `backtest_run_duration_seconds_count{kind="rsi"} 2`)
}

func TestObserveSignal_SkipsNone(t *testing.T) {
	m := New()
	m.ObserveSignal(model.SignalEvent{Symbol: "BTCUSDT", Signal: model.SignalBuy})
	m.ObserveSignal(model.SignalEvent{Symbol: "BTCUSDT", Signal: model.SignalNone})

	out := scrape(t, m)
	assert.Contains(t, out, `bot_signals_total{signal="BUY",symbol="BTCUSDT"} 1`)
	assert.NotContains(t, out, `signal="NONE"`)
}

func TestTrackBreaker(t *testing.T) {
	m := New()
	cb := breaker.New(1, time.Hour)
	m.TrackBreaker("redis", cb)

	cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") })

	out := scrape(t, m)
	assert.Contains(t, out, `circuit_breaker_state{component="redis"} 1`)
	assert.Contains(t, out, `circuit_breaker_trips_total{component="redis"} 1`)
}

func TestHealthStatus(t *testing.T) {
	h := NewHealthStatus()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "sqlite not yet checked")

	h.mu.Lock()
	h.SQLiteOK = true
	h.mu.Unlock()
	h.RecordTick(time.Now(), time.Now().Add(-time.Hour))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1h0m0s", body["bar_age"])

	h.mu.Lock()
	h.RedisEnabled = true
	h.mu.Unlock()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
