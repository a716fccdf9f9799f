package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-backtestv1/internal/model"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sellEvent() model.SignalEvent {
	return model.SignalEvent{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		Strategy: "RSI(14,30,70)",
		Signal:   model.SignalSell,
		Price:    43210.5,
		BarTS:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		TraceID:  "BTCUSDT-1709294400",
	}
}

func TestSignalAlert(t *testing.T) {
	a := SignalAlert(sellEvent())
	assert.Equal(t, AlertWarning, a.Level)
	assert.Equal(t, "SELL signal BTCUSDT", a.Title)
	assert.Contains(t, a.Message, "43210.5")
	assert.Contains(t, a.Message, "2024-03-01 12:00")
	assert.Equal(t, "BTCUSDT-1709294400", a.TraceID)

	ev := sellEvent()
	ev.Signal = model.SignalBuy
	assert.Equal(t, "BUY signal BTCUSDT", SignalAlert(ev).Title)
}

func TestLogNotifier_Levels(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.Send(context.Background(), SignalAlert(sellEvent())))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "SELL signal BTCUSDT", rec["title"])
	assert.Equal(t, "BTCUSDT-1709294400", rec["trace_id"])
	assert.Equal(t, "notify", rec["component"])

	buf.Reset()
	require.NoError(t, n.Send(context.Background(), Critical("fetch failed", errors.New("timeout"))))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
}

func TestTelegramNotifier(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", quiet())
	n.baseURL = srv.URL

	require.NoError(t, n.Send(context.Background(), Info("Bot started", "RSI(14,30,70) on BTC/USDT")))
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "MarkdownV2", got["parse_mode"])
	assert.Contains(t, got["text"], `RSI\(14,30,70\) on BTC/USDT`)
}

func TestTelegramNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bad", "42", quiet())
	n.baseURL = srv.URL
	assert.Error(t, n.Send(context.Background(), Info("x", "y")))
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c\.d\!`, escapeMarkdown("a_b*c.d!"))
	assert.Equal(t, "plain", escapeMarkdown("plain"))
}

func TestWebhookNotifier(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, quiet())
	n.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, n.Send(context.Background(), SignalAlert(sellEvent())))
	assert.Equal(t, "WARNING", got.Level)
	assert.Equal(t, "BTCUSDT-1709294400", got.TraceID)
	assert.Equal(t, "2024-03-01T00:00:00Z", got.TS)
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	assert.Error(t, NewWebhookNotifier(srv.URL, quiet()).Send(context.Background(), Info("x", "y")))
}

type failing struct{ err error }

func (f failing) Send(context.Context, Alert) error { return f.err }

type counting struct{ n int }

func (c *counting) Send(context.Context, Alert) error { c.n++; return nil }

func TestMulti_TriesEveryBackend(t *testing.T) {
	errA := errors.New("a down")
	c := &counting{}
	m := Multi{failing{errA}, nil, c}

	err := m.Send(context.Background(), Info("x", "y"))
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, 1, c.n)

	assert.NoError(t, Multi{c}.Send(context.Background(), Info("x", "y")))
}
