package store

import (
	"context"
	"sync"
	"time"
)

// hub fans out change events to in-process watchers for backends that keep
// their data in a single database file, where filesystem notifications cannot
// tell records apart.
type hub struct {
	mu   sync.Mutex
	subs map[chan Event]*eventThrottle
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, throttle := range h.subs {
		ch := ch
		throttle.Enqueue(ev, func(ev Event) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; !ok {
				return
			}
			select {
			case ch <- ev:
			default:
			}
		})
	}
}

func (h *hub) watch(ctx context.Context) <-chan Event {
	ch := make(chan Event, 64)
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan Event]*eventThrottle)
	}
	h.subs[ch] = newEventThrottle(50 * time.Millisecond)
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.drop(ch)
	}()
	return ch
}

func (h *hub) drop(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.subs[ch]; ok {
		t.Stop()
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	subs := make([]chan Event, 0, len(h.subs))
	for ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()
	for _, ch := range subs {
		h.drop(ch)
	}
}
