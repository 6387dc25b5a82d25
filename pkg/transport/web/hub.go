package web

import (
	"sync"
	"sync/atomic"

	"github.com/modoterra/gatewatch/pkg/core"
)

const subscriberBuffer = 256

// Hub fans new feed entries out to streaming HTTP clients.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan core.RetainedEntry]struct{}
	dropped     atomic.Int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan core.RetainedEntry]struct{})}
}

// Subscribe returns a buffered channel receiving every published entry and
// a func that unsubscribes and closes it.
func (h *Hub) Subscribe() (<-chan core.RetainedEntry, func()) {
	ch := make(chan core.RetainedEntry, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish sends entries to every subscriber. Entries are dropped for a
// subscriber whose buffer is full.
func (h *Hub) Publish(entries []core.RetainedEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		for _, e := range entries {
			select {
			case ch <- e:
			default:
				h.dropped.Add(1)
			}
		}
	}
}

// Subscribers returns the number of connected stream clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns the number of entries dropped for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
