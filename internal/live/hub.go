package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trading-backtestv1/internal/marketdata"
	"trading-backtestv1/internal/model"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
)

// Envelope is the frame sent to websocket clients.
type Envelope struct {
	Type    string            `json:"type"` // "signal" or "pong"
	Channel string            `json:"channel,omitempty"`
	Seq     int64             `json:"seq,omitempty"`
	Data    model.SignalEvent `json:"data,omitzero"`
	Initial bool              `json:"initial,omitempty"`
	Ping    int64             `json:"ping,omitempty"`
	Server  int64             `json:"server_ts,omitempty"`
}

// Hub fans live signals out to websocket clients. New clients first receive
// the latest signal of every market (or, with ?since=<seq>, every retained
// signal after seq), then live updates. Slow clients drop messages instead
// of blocking the loop.
type Hub struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	latest  map[string]Envelope
	history *History
	seq     int64

	// OnDrop and OnClients feed metrics; both optional.
	OnDrop    func()
	OnClients func(n int)
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     logger.With("component", "ws"),
		clients: make(map[*client]struct{}),
		latest:  make(map[string]Envelope),
		history: NewHistory(defaultHistory),
	}
}

// ChannelName identifies one market's signal stream.
func ChannelName(symbol, interval string) string {
	return "signal:" + interval + ":" + symbol
}

// ServeHTTP upgrades the request and registers the client. A "symbols" query
// parameter (comma separated) limits delivery to those markets; "since"
// requests a backfill from the signal history.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     h,
		symbols: parseSymbols(r.URL.Query().Get("symbols")),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	for _, env := range h.initial(r.URL.Query().Get("since")) {
		if c.wants(env.Data.Symbol) {
			env.Initial = true
			c.enqueue(mustJSON(env))
		}
	}
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}

	go c.writePump()
	go c.readPump()
}

// initial is the catch-up set for a new client. Caller holds h.mu.
func (h *Hub) initial(since string) []Envelope {
	if since != "" {
		if seq, err := strconv.ParseInt(since, 10, 64); err == nil {
			return h.history.Since(seq)
		}
	}
	out := make([]Envelope, 0, len(h.latest))
	for _, env := range h.latest {
		out = append(out, env)
	}
	return out
}

// Broadcast sends ev to every interested client and remembers it as the
// market's latest signal.
func (h *Hub) Broadcast(ev model.SignalEvent) {
	ch := ChannelName(ev.Symbol, ev.Interval)

	h.mu.Lock()
	h.seq++
	env := Envelope{Type: "signal", Channel: ch, Seq: h.seq, Data: ev}
	msg := mustJSON(env)
	h.latest[ch] = env
	h.history.Push(env)
	for c := range h.clients {
		if c.wants(ev.Symbol) && !c.enqueue(msg) && h.OnDrop != nil {
			h.OnDrop()
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.log.Info("ws client disconnected", "clients", n)
		if h.OnClients != nil {
			h.OnClients(n)
		}
	}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	symbols map[string]bool // empty means every market
}

func (c *client) wants(symbol string) bool {
	return len(c.symbols) == 0 || c.symbols[symbol]
}

// enqueue must be called with the hub lock held so send is not closed underneath.
func (c *client) enqueue(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in struct {
			Ping int64 `json:"ping"`
		}
		if json.Unmarshal(msg, &in) != nil || in.Ping <= 0 {
			continue
		}
		pong := mustJSON(Envelope{Type: "pong", Ping: in.Ping, Server: time.Now().UnixMilli()})
		c.hub.mu.RLock()
		if _, ok := c.hub.clients[c]; ok {
			c.enqueue(pong)
		}
		c.hub.mu.RUnlock()
	}
}

func parseSymbols(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		if s = marketdata.NormalizeSymbol(s); s != "" {
			out[s] = true
		}
	}
	return out
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
