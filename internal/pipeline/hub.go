// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pipeline

import (
	"sync"
	"sync/atomic"
)

// Hub fans processed events out to live tap subscribers. Sends never
// block: a subscriber that cannot keep up loses events, not the
// pipeline.
type Hub struct {
	mu   sync.RWMutex
	subs []tapSub

	published atomic.Uint64
	dropped   atomic.Uint64
}

type tapSub struct {
	ch    chan []byte
	types map[string]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Publish offers one rendered event line to every matching subscriber.
func (h *Hub) Publish(eventType string, line []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.published.Add(1)
	for _, sub := range h.subs {
		if sub.types != nil && !sub.types[eventType] {
			continue
		}
		select {
		case sub.ch <- line:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel receiving events of the given types, or
// every event when no types are named. The caller must drain it or
// accept drops.
func (h *Hub) Subscribe(bufSize int, types ...string) <-chan []byte {
	if bufSize <= 0 {
		bufSize = 256
	}

	sub := tapSub{ch: make(chan []byte, bufSize)}
	if len(types) > 0 {
		sub.types = make(map[string]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()

	return sub.ch
}

// Unsubscribe detaches a channel. The channel is not closed.
func (h *Hub) Unsubscribe(ch <-chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	keep := h.subs[:0]
	for _, sub := range h.subs {
		if sub.ch != ch {
			keep = append(keep, sub)
		}
	}
	h.subs = keep
}

// Stats reports publish and drop counts for the status API.
func (h *Hub) Stats() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}
