package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dantte-lp/gorstp/internal/rstp"
)

// subscriberBuffer is the per-subscriber event backlog.
const subscriberBuffer = 32

// EventHub fans bridge events out to every watching client. A slow
// subscriber loses events rather than stalling the others.
type EventHub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan rstp.Event]struct{}
	done bool
}

// NewEventHub creates an empty hub. Call Run to start delivery.
func NewEventHub(logger *slog.Logger) *EventHub {
	return &EventHub{
		logger: logger.With(slog.String("component", "server.events")),
		subs:   make(map[chan rstp.Event]struct{}),
	}
}

// Run copies events from src to every subscriber until ctx is cancelled
// or src is closed. Subscriber channels are closed on return.
func (h *EventHub) Run(ctx context.Context, src <-chan rstp.Event) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			h.publish(ev)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func must be
// called when the subscriber is done; the channel is closed when the hub
// stops.
func (h *EventHub) Subscribe() (<-chan rstp.Event, func()) {
	ch := make(chan rstp.Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *EventHub) publish(ev rstp.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("subscriber too slow, dropping event",
				slog.String("kind", ev.Kind.String()),
				slog.String("bridge", ev.Bridge),
			)
		}
	}
}

func (h *EventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.done = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
