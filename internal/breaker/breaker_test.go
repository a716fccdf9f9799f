package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFail = errors.New("fail")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, reset time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(maxFailures, reset)
	b.now = clk.now
	return b, clk
}

func fail(context.Context) error { return errFail }
func ok(context.Context) error   { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errFail)
	}
	assert.Equal(t, StateOpen, b.CurrentState())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "open breaker must not call through")
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(3, time.Second)

	b.Execute(ctx, fail)
	b.Execute(ctx, fail)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Zero(t, b.Failures())

	b.Execute(ctx, fail)
	b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	b, clk := newTestBreaker(2, 50*time.Millisecond)

	var transitions []string
	b.OnStateChange(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	b.Execute(ctx, fail)
	b.Execute(ctx, fail)
	require.Equal(t, StateOpen, b.CurrentState())

	clk.advance(60 * time.Millisecond)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.CurrentState())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b, clk := newTestBreaker(2, 50*time.Millisecond)

	b.Execute(ctx, fail)
	b.Execute(ctx, fail)

	clk.advance(60 * time.Millisecond)
	assert.ErrorIs(t, b.Execute(ctx, fail), errFail)
	assert.Equal(t, StateOpen, b.CurrentState())

	// the reset window restarts from the failed probe
	clk.advance(10 * time.Millisecond)
	assert.ErrorIs(t, b.Execute(ctx, ok), ErrOpen)
}

func TestBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	ctx := context.Background()
	b, clk := newTestBreaker(1, time.Second)
	b.Execute(ctx, fail)
	clk.advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, b.Execute(ctx, ok), ErrOpen, "second caller during probe is rejected")
	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	b, _ := newTestBreaker(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.CurrentState())
	assert.Zero(t, b.Failures())
}
