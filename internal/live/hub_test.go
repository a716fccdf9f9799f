package live

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func signalEvent(symbol string, sig model.Signal, price float64) model.SignalEvent {
	return model.SignalEvent{
		Symbol:   symbol,
		Interval: "1h",
		Strategy: "RSI(14,30,70)",
		Signal:   sig,
		Price:    price,
		BarTS:    t0,
	}
}

func TestHub_InitialStateThenLive(t *testing.T) {
	hub := NewHub(quiet())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Broadcast(signalEvent("BTCUSDT", model.SignalBuy, 100))

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, time.Millisecond)

	env := readEnvelope(t, conn)
	assert.True(t, env.Initial)
	assert.Equal(t, "signal:1h:BTCUSDT", env.Channel)
	assert.Equal(t, model.SignalBuy, env.Data.Signal)

	hub.Broadcast(signalEvent("BTCUSDT", model.SignalSell, 110))
	env = readEnvelope(t, conn)
	assert.False(t, env.Initial)
	assert.Equal(t, model.SignalSell, env.Data.Signal)
	assert.Equal(t, 110.0, env.Data.Price)
}

func TestHub_BackfillSince(t *testing.T) {
	hub := NewHub(quiet())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Broadcast(signalEvent("BTCUSDT", model.SignalBuy, 100))
	hub.Broadcast(signalEvent("BTCUSDT", model.SignalSell, 110))
	hub.Broadcast(signalEvent("BTCUSDT", model.SignalBuy, 105))

	conn := dial(t, srv, "?since=1")
	first := readEnvelope(t, conn)
	second := readEnvelope(t, conn)

	assert.True(t, first.Initial)
	assert.Equal(t, int64(2), first.Seq)
	assert.Equal(t, model.SignalSell, first.Data.Signal)
	assert.Equal(t, int64(3), second.Seq)
	assert.Equal(t, 105.0, second.Data.Price)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, time.Millisecond)
	hub.Broadcast(signalEvent("BTCUSDT", model.SignalSell, 120))
	live := readEnvelope(t, conn)
	assert.False(t, live.Initial)
	assert.Equal(t, int64(4), live.Seq)
}

func TestHub_SymbolFilter(t *testing.T) {
	hub := NewHub(quiet())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "?symbols=eth/usdt")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, time.Millisecond)

	hub.Broadcast(signalEvent("BTCUSDT", model.SignalBuy, 100))
	hub.Broadcast(signalEvent("ETHUSDT", model.SignalSell, 2000))

	env := readEnvelope(t, conn)
	assert.Equal(t, "ETHUSDT", env.Data.Symbol, "BTC signal filtered out")
}

func TestHub_PingPong(t *testing.T) {
	hub := NewHub(quiet())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"ping":12345}`)))

	env := readEnvelope(t, conn)
	assert.Equal(t, "pong", env.Type)
	assert.Equal(t, int64(12345), env.Ping)
	assert.Positive(t, env.Server)
}

func TestHub_ClientCountCallbacks(t *testing.T) {
	hub := NewHub(quiet())
	counts := make(chan int, 4)
	hub.OnClients = func(n int) { counts <- n }
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	assert.Equal(t, 1, <-counts)
	conn.Close()

	select {
	case n := <-counts:
		assert.Equal(t, 0, n)
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect not observed")
	}
	assert.Zero(t, hub.ClientCount())
}

func TestHub_SlowClientDrops(t *testing.T) {
	hub := NewHub(quiet())
	drops := 0
	hub.OnDrop = func() { drops++ }

	// a registered client whose pumps never run
	c := &client{send: make(chan []byte, 1), hub: hub, symbols: map[string]bool{}}
	hub.clients[c] = struct{}{}

	hub.Broadcast(signalEvent("BTCUSDT", model.SignalBuy, 100))
	hub.Broadcast(signalEvent("BTCUSDT", model.SignalSell, 101))
	assert.Equal(t, 1, drops)

	hub.Close()
	assert.Zero(t, hub.ClientCount())
}
