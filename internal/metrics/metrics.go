// Package metrics exposes Prometheus instruments for backtests, grid searches
// and the live bot, plus a /healthz probe.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/model"
	"trading-backtestv1/internal/strategy"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// tests and parallel commands do not collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	// Backtests and grid search
	BacktestRuns     *prometheus.CounterVec   // labels: kind, result
	BacktestDuration *prometheus.HistogramVec // labels: kind

	// Live loop
	Ticks          prometheus.Counter
	FetchFailures  prometheus.Counter
	FetchDuration  prometheus.Histogram
	BarLag         prometheus.Gauge         // seconds between last bar open and now
	SignalsTotal   *prometheus.CounterVec   // labels: symbol, signal
	PaperFills     *prometheus.CounterVec   // labels: side
	PaperEquity    prometheus.Gauge
	PublishErrors  prometheus.Counter
	BufferedEvents prometheus.Counter
	BreakerState   *prometheus.GaugeVec // labels: component; 0=closed, 1=open, 2=half-open
	BreakerTrips   *prometheus.CounterVec
	WSClients      prometheus.Gauge
	WSDropped      prometheus.Counter
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		BacktestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_runs_total",
			Help: "Backtest runs by strategy kind and result",
		}, []string{"kind", "result"}),
		BacktestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall time of one strategy evaluation plus simulation",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"kind"}),

		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Live loop iterations",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_fetch_failures_total",
			Help: "Ticks that received no market data",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_fetch_duration_seconds",
			Help:    "Market data fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		BarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_bar_lag_seconds",
			Help: "Age of the newest bar at evaluation time",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Actionable signals by symbol and side",
		}, []string{"symbol", "signal"}),
		PaperFills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_paper_fills_total",
			Help: "Simulated fills by side",
		}, []string{"side"}),
		PaperEquity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_paper_equity",
			Help: "Paper account value marked at the last close",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_publish_errors_total",
			Help: "Signal publish failures",
		}),
		BufferedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_publish_buffered_total",
			Help: "Signals buffered while the Redis breaker was open",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"component"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"component"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Connected websocket clients",
		}),
		WSDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ws_dropped_messages_total",
			Help: "Messages dropped for slow websocket clients",
		}),
	}

	m.reg.MustRegister(
		m.BacktestRuns,
		m.BacktestDuration,
		m.Ticks,
		m.FetchFailures,
		m.FetchDuration,
		m.BarLag,
		m.SignalsTotal,
		m.PaperFills,
		m.PaperEquity,
		m.PublishErrors,
		m.BufferedEvents,
		m.BreakerState,
		m.BreakerTrips,
		m.WSClients,
		m.WSDropped,
	)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveRun records one backtest run; it satisfies optimize.Observer.
func (m *Metrics) ObserveRun(kind strategy.Kind, d time.Duration, err error) {
	result := "ok"
	switch {
	case errors.Is(err, strategy.ErrInvalidParams):
		result = "invalid"
	case err != nil:
		result = "error"
	}
	m.BacktestRuns.WithLabelValues(string(kind), result).Inc()
	m.BacktestDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// ObserveSignal counts an actionable live signal.
func (m *Metrics) ObserveSignal(ev model.SignalEvent) {
	if ev.Signal == model.SignalNone {
		return
	}
	m.SignalsTotal.WithLabelValues(ev.Symbol, ev.Signal.String()).Inc()
}

// TrackBreaker mirrors a breaker's state into the gauge and trip counter.
func (m *Metrics) TrackBreaker(component string, cb *breaker.Breaker) {
	m.BreakerState.WithLabelValues(component).Set(float64(cb.CurrentState()))
	cb.OnStateChange(func(_, to breaker.State) {
		m.BreakerState.WithLabelValues(component).Set(float64(to))
		if to == breaker.StateOpen {
			m.BreakerTrips.WithLabelValues(component).Inc()
		}
	})
}

// HealthStatus represents the bot's dependency health.
type HealthStatus struct {
	mu sync.RWMutex

	LastTickTime   time.Time
	LastBarTime    time.Time
	RedisEnabled   bool
	RedisConnected bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// RecordTick stores the time of the last loop iteration and its newest bar.
func (h *HealthStatus) RecordTick(at, bar time.Time) {
	h.mu.Lock()
	h.LastTickTime = at
	if !bar.IsZero() {
		h.LastBarTime = bar
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the cache database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx ends.
// Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. Redis only counts when enabled.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK
	if !h.SQLiteOK || (h.RedisEnabled && !h.RedisConnected) {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Second).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LastTickTime    string  `json:"last_tick_time"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overall,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics, /healthz and any extra
// handlers (the live websocket).
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates the HTTP server. health may be nil; extra maps paths to
// handlers.
func NewServer(addr string, m *Metrics, health *HealthStatus, extra map[string]http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if health != nil {
		mux.Handle("/healthz", health)
	}
	for path, h := range extra {
		mux.Handle(path, h)
	}
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		log:  logger,
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("http server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
