// Package redis fans live strategy signals out through Redis: an append-only
// stream per market, a "latest" key with TTL and a PubSub channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/model"
)

const (
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = 30 * time.Minute
	defaultMaxBuffer    = 1000
)

// Config configures the publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	StreamMaxLen int64         // approximate XADD trim length
	LatestTTL    time.Duration // expiry of the latest-signal key
	MaxBuffer    int           // events kept while the breaker is open
}

// StreamKey is the Redis stream holding every signal for a market.
func StreamKey(symbol, interval string) string {
	return fmt.Sprintf("signal:%s:%s", interval, symbol)
}

// LatestKey holds the most recent signal for a market.
func LatestKey(symbol, interval string) string {
	return fmt.Sprintf("signal:%s:latest:%s", interval, symbol)
}

// Channel is the PubSub channel for a market.
func Channel(symbol, interval string) string {
	return fmt.Sprintf("pub:signal:%s:%s", interval, symbol)
}

// Publisher writes signal events to Redis behind a circuit breaker. While
// the breaker is open events are buffered (oldest dropped beyond MaxBuffer)
// and replayed once it closes.
type Publisher struct {
	client *goredis.Client
	cb     *breaker.Breaker
	cfg    Config
	log    *slog.Logger

	mu     sync.Mutex
	buffer []model.SignalEvent

	// OnBuffer is called when an event is buffered (for metrics).
	OnBuffer func()
}

var _ model.SignalPublisher = (*Publisher)(nil)

// New connects to Redis, pings it and returns a publisher.
func New(cfg Config, cb *breaker.Breaker, logger *slog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := NewWithClient(client, cfg, cb, logger)
	p.log.Info("redis connected", "addr", cfg.Addr)
	return p, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config, cb *breaker.Breaker, logger *slog.Logger) *Publisher {
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = defaultMaxBuffer
	}
	if cb == nil {
		cb = breaker.New(5, 10*time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{client: client, cb: cb, cfg: cfg, log: logger}
	cb.OnStateChange(func(from, to breaker.State) {
		p.log.Warn("redis breaker state change", "from", from.String(), "to", to.String())
	})
	return p
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Publish writes ev. When the breaker rejects the call the event is buffered
// and ErrOpen is returned; other errors are returned as is.
func (p *Publisher) Publish(ctx context.Context, ev model.SignalEvent) error {
	err := p.cb.Execute(ctx, func(ctx context.Context) error {
		if err := p.flush(ctx); err != nil {
			return err
		}
		return p.write(ctx, ev)
	})
	if errors.Is(err, breaker.ErrOpen) {
		p.bufferEvent(ev)
	}
	return err
}

func (p *Publisher) write(ctx context.Context, ev model.SignalEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	data := string(payload)

	_, err = p.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamKey(ev.Symbol, ev.Interval),
			MaxLen: p.cfg.StreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"signal": ev.Signal.String(),
				"data":   data,
			},
		})
		pipe.Set(ctx, LatestKey(ev.Symbol, ev.Interval), data, p.cfg.LatestTTL)
		pipe.Publish(ctx, Channel(ev.Symbol, ev.Interval), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish signal: %w", err)
	}
	return nil
}

func (p *Publisher) bufferEvent(ev model.SignalEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) >= p.cfg.MaxBuffer {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, ev)
	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered events in order. Events not yet written stay buffered.
func (p *Publisher) flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	for i, ev := range pending {
		if err := p.write(ctx, ev); err != nil {
			p.mu.Lock()
			p.buffer = append(pending[i:len(pending):len(pending)], p.buffer...)
			p.mu.Unlock()
			return err
		}
	}
	if len(pending) > 0 {
		p.log.Info("flushed buffered signals", "count", len(pending))
	}
	return nil
}

// Buffered returns the number of events waiting for the breaker to close.
func (p *Publisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Latest reads back the most recent signal for a market.
func (p *Publisher) Latest(ctx context.Context, symbol, interval string) (model.SignalEvent, bool, error) {
	data, err := p.client.Get(ctx, LatestKey(symbol, interval)).Result()
	if err == goredis.Nil {
		return model.SignalEvent{}, false, nil
	}
	if err != nil {
		return model.SignalEvent{}, false, fmt.Errorf("redis get latest signal: %w", err)
	}
	var ev model.SignalEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return model.SignalEvent{}, false, fmt.Errorf("unmarshal latest signal: %w", err)
	}
	return ev, true, nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
