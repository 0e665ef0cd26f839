package stream

import (
	"sync"
	"sync/atomic"

	"SynthFeed/internal/domain/models"
	applogger "SynthFeed/pkg/logger"
)

const defaultSubscriberBuf = 64

type subscriber struct {
	symbol string // empty receives every symbol
	ch     chan models.Bar
}

// Hub fans emitted bars out to live subscribers such as websocket clients.
// A subscriber whose buffer is full is dropped and its channel closed.
type Hub struct {
	l *applogger.Logger

	mu   sync.RWMutex
	subs map[int64]*subscriber

	nextID int64
}

func NewHub(l *applogger.Logger) *Hub {
	if l == nil {
		l = applogger.Nop()
	}
	return &Hub{l: l, subs: make(map[int64]*subscriber)}
}

// Subscribe registers a buffered channel receiving bars of symbol, or of every
// symbol when symbol is empty.
func (h *Hub) Subscribe(symbol string, buffer int) (int64, <-chan models.Bar) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuf
	}
	s := &subscriber{symbol: symbol, ch: make(chan models.Bar, buffer)}
	id := atomic.AddInt64(&h.nextID, 1)

	h.mu.Lock()
	h.subs[id] = s
	h.mu.Unlock()
	return id, s.ch
}

// Unsubscribe removes a subscriber. Unknown or already dropped ids are ignored.
func (h *Hub) Unsubscribe(id int64) {
	h.mu.Lock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
	h.mu.Unlock()
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast never blocks.
func (h *Hub) Broadcast(b models.Bar) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		if s.symbol != "" && s.symbol != b.Symbol {
			continue
		}
		select {
		case s.ch <- b:
		default:
			h.l.Warn("dropping slow bar subscriber",
				applogger.Int64("id", id),
				applogger.String("symbol", b.Symbol))
			close(s.ch)
			delete(h.subs, id)
		}
	}
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}
