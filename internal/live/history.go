package live

import "sync"

const defaultHistory = 500

// History is a fixed-size circular buffer of recent broadcast envelopes,
// oldest overwritten first. Reconnecting clients use it to backfill the
// signals they missed. Safe for concurrent use.
type History struct {
	mu   sync.RWMutex
	buf  []Envelope
	pos  int // next write position
	full bool
}

// NewHistory creates a buffer holding up to capacity envelopes.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = defaultHistory
	}
	return &History{buf: make([]Envelope, capacity)}
}

// Push records env, evicting the oldest entry when full.
func (h *History) Push(env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.pos] = env
	h.pos = (h.pos + 1) % len(h.buf)
	if h.pos == 0 {
		h.full = true
	}
}

// Since returns the retained envelopes with Seq > seq, oldest first.
func (h *History) Since(seq int64) []Envelope {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []Envelope
	for i := 0; i < h.len(); i++ {
		if e := h.buf[h.index(i)]; e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained envelopes.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.len()
}

func (h *History) len() int {
	if h.full {
		return len(h.buf)
	}
	return h.pos
}

// index maps a logical position (0 = oldest) to a slot.
func (h *History) index(logical int) int {
	if h.full {
		return (h.pos + logical) % len(h.buf)
	}
	return logical
}
