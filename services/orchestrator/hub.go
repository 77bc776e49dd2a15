package orchestrator

import (
	"log"
	"sync"
)

const (
	// DefaultHistory is the number of recent events retained for newly
	// connecting observers.
	DefaultHistory = 50

	defaultSubscriberBuffer = 256
)

// Hub fans events out to any number of subscribers. Each controller
// publishes from a single goroutine, and the hub delivers under one lock,
// so every subscriber observes a given run's events in emission order.
// Ordering across different runs is not guaranteed.
//
// The hub is a dashboard feed, not an audit log: late subscribers get
// only the bounded recent-history buffer, and a subscriber that falls
// behind its channel buffer is dropped rather than reordering or
// blocking publishers.
type Hub struct {
	logger  *log.Logger
	maxHist int

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	history []Event
	closed  bool
}

// Subscription is one subscriber's ordered event feed. The channel is
// closed when the subscriber is dropped or the hub shuts down.
type Subscription struct {
	hub *Hub
	ch  chan Event
}

// Events returns the subscriber's receive channel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription from the hub.
func (s *Subscription) Close() { s.hub.unsubscribe(s) }

// NewHub creates a hub retaining maxHistory recent events. A
// non-positive maxHistory selects DefaultHistory.
func NewHub(maxHistory int, logger *log.Logger) *Hub {
	if maxHistory <= 0 {
		maxHistory = DefaultHistory
	}
	return &Hub{
		logger:  logger,
		maxHist: maxHistory,
		subs:    make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber. buffer bounds how far the
// subscriber may lag before being dropped; non-positive selects a
// default.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	sub := &Subscription{hub: h, ch: make(chan Event, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Publish appends ev to the history buffer and delivers it to every
// subscriber. Subscribers whose buffers are full are dropped.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.history = append(h.history, ev)
	if len(h.history) > h.maxHist {
		h.history = h.history[len(h.history)-h.maxHist:]
	}

	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(h.subs, sub)
			close(sub.ch)
			if h.logger != nil {
				h.logger.Printf("WARN event subscriber lagging, dropped")
			}
		}
	}
}

// History returns a copy of the recent-event buffer, oldest first.
func (h *Hub) History() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, len(h.history))
	copy(out, h.history)
	return out
}

// Close drops all subscribers and rejects further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
