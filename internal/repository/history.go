package repository

import (
	"sync"

	"SynthFeed/internal/domain/models"
)

// BarRing is a fixed-capacity buffer of one symbol's most recent bars.
// When full, Append overwrites the oldest bar.
type BarRing struct {
	mu    sync.RWMutex
	buf   []models.Bar
	start int
	size  int
}

// NewBarRing creates a ring holding at most capacity bars.
func NewBarRing(capacity int) *BarRing {
	if capacity < 1 {
		capacity = 1
	}
	return &BarRing{buf: make([]models.Bar, capacity)}
}

func (r *BarRing) Cap() int { return len(r.buf) }

func (r *BarRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *BarRing) Append(b models.Bar) {
	r.mu.Lock()
	r.appendLocked(b)
	r.mu.Unlock()
}

func (r *BarRing) appendLocked(b models.Bar) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = b
		r.size++
		return
	}
	r.buf[r.start] = b
	r.start = (r.start + 1) % len(r.buf)
}

// Latest returns the newest bar.
func (r *BarRing) Latest() (models.Bar, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return models.Bar{}, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}

// Last returns up to n newest bars, oldest first.
func (r *BarRing) Last(n int) []models.Bar {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []models.Bar{}
	}
	out := make([]models.Bar, n)
	first := r.start + r.size - n
	for i := range out {
		out[i] = r.buf[(first+i)%len(r.buf)]
	}
	return out
}

// All returns every held bar, oldest first.
func (r *BarRing) All() []models.Bar {
	return r.Last(r.Cap())
}

// Load replaces the contents with bars; only the newest Cap() are kept.
func (r *BarRing) Load(bars []models.Bar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start, r.size = 0, 0
	if len(bars) > len(r.buf) {
		bars = bars[len(bars)-len(r.buf):]
	}
	for _, b := range bars {
		r.appendLocked(b)
	}
}

// History holds one BarRing per symbol.
type History struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*BarRing
}

func NewHistory(capacity int) *History {
	return &History{capacity: capacity, rings: make(map[string]*BarRing)}
}

func (h *History) ring(symbol string) *BarRing {
	h.mu.RLock()
	r, ok := h.rings[symbol]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok = h.rings[symbol]; !ok {
		r = NewBarRing(h.capacity)
		h.rings[symbol] = r
	}
	return r
}

func (h *History) Append(b models.Bar) {
	h.ring(b.Symbol).Append(b)
}

func (h *History) Latest(symbol string) (models.Bar, bool) {
	h.mu.RLock()
	r, ok := h.rings[symbol]
	h.mu.RUnlock()
	if !ok {
		return models.Bar{}, false
	}
	return r.Latest()
}

func (h *History) Last(symbol string, n int) []models.Bar {
	h.mu.RLock()
	r, ok := h.rings[symbol]
	h.mu.RUnlock()
	if !ok {
		return []models.Bar{}
	}
	return r.Last(n)
}

// Snapshot copies every ring, oldest bar first per symbol.
func (h *History) Snapshot() map[string][]models.Bar {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string][]models.Bar, len(h.rings))
	for sym, r := range h.rings {
		out[sym] = r.All()
	}
	return out
}

// Load replaces each listed symbol's ring. Bars get the map key as their symbol.
func (h *History) Load(history map[string][]models.Bar) {
	for sym, bars := range history {
		for i := range bars {
			bars[i].Symbol = sym
		}
		h.ring(sym).Load(bars)
	}
}
