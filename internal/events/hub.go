// Package events fans bazaar events out to subscribers.
package events

import (
	"sync"

	"github.com/xtrntr/bazaar/internal/models"
)

// KindInitiatedBuy is the kind of the only event the bazaar emits.
const KindInitiatedBuy = "InitiatedBuy"

// Event is one published notification.
type Event struct {
	Kind  string               `json:"kind"`
	Block models.BlockNumber   `json:"block"`
	Data  *models.InitiatedBuy `json:"data"`
}

// Publisher accepts events after the operation that produced them committed.
type Publisher interface {
	Publish(e Event)
}

// Hub delivers every published event to all current subscribers
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	buffer  int
	dropped uint64
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[chan Event]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. Call the returned function to unsubscribe.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e without blocking. A subscriber whose buffer is full misses e.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped++
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
