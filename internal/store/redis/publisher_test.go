package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/breaker"
	"trading-backtestv1/internal/model"
)

// unreachable points at a port nothing listens on; connection refused is
// immediate, so these tests need no Redis server.
func unreachable() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func event(i int) model.SignalEvent {
	return model.SignalEvent{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		Strategy: "RSI(14,30,70)",
		Signal:   model.SignalBuy,
		Price:    float64(100 + i),
		BarTS:    time.Date(2024, 1, 1, i, 0, 0, 0, time.UTC),
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "signal:1h:BTCUSDT", StreamKey("BTCUSDT", "1h"))
	assert.Equal(t, "signal:1h:latest:BTCUSDT", LatestKey("BTCUSDT", "1h"))
	assert.Equal(t, "pub:signal:1h:BTCUSDT", Channel("BTCUSDT", "1h"))
}

func TestNew_PingFailure(t *testing.T) {
	_, err := New(Config{Addr: "127.0.0.1:1"}, nil, quiet())
	assert.Error(t, err)
}

func TestPublish_BreakerOpensAndBuffers(t *testing.T) {
	ctx := context.Background()
	cb := breaker.New(2, time.Hour)
	p := NewWithClient(unreachable(), Config{MaxBuffer: 3}, cb, quiet())
	defer p.Close()

	buffered := 0
	p.OnBuffer = func() { buffered++ }

	// connection errors count as failures until the breaker trips
	for i := 0; i < 2; i++ {
		err := p.Publish(ctx, event(i))
		require.Error(t, err)
		assert.NotErrorIs(t, err, breaker.ErrOpen)
	}
	assert.Equal(t, breaker.StateOpen, cb.CurrentState())
	assert.Zero(t, p.Buffered())

	for i := 2; i < 7; i++ {
		assert.ErrorIs(t, p.Publish(ctx, event(i)), breaker.ErrOpen)
	}
	assert.Equal(t, 5, buffered)
	assert.Equal(t, 3, p.Buffered(), "oldest events dropped beyond MaxBuffer")

	p.mu.Lock()
	assert.Equal(t, 104.0, p.buffer[0].Price)
	assert.Equal(t, 106.0, p.buffer[2].Price)
	p.mu.Unlock()
}

func TestFlush_KeepsUnsentEvents(t *testing.T) {
	p := NewWithClient(unreachable(), Config{}, breaker.New(10, time.Hour), quiet())
	defer p.Close()

	p.bufferEvent(event(1))
	p.bufferEvent(event(2))
	require.Error(t, p.flush(context.Background()))
	assert.Equal(t, 2, p.Buffered())
}
