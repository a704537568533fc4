package services

import (
	"sync"

	"github.com/bidyaasp/project-management/internal/metrics"
	"github.com/google/uuid"
)

const (
	subscriberBuffer = 100
	// replayWindow is how many recent events a reconnecting client can
	// resume from with Last-Event-ID.
	replayWindow = 256
)

// ActivityFilter decides whether a subscriber receives an event.
type ActivityFilter func(ActivityEvent) bool

// Subscription is one connected stream. Events is closed when the
// subscription is removed or the hub shuts down.
type Subscription struct {
	ID     string
	Events <-chan ActivityEvent

	ch      chan ActivityEvent
	filter  ActivityFilter
	dropped int
}

func (s *Subscription) accepts(ev ActivityEvent) bool {
	return s.filter == nil || s.filter(ev)
}

// offer never blocks; a full buffer drops the event.
func (s *Subscription) offer(ev ActivityEvent) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		s.dropped++
		return false
	}
}

// SSEHub fans committed activity out to live subscribers and keeps a short
// replay window for reconnects.
type SSEHub struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	recent []ActivityEvent
	closed bool
}

func NewSSEHub() *SSEHub {
	return &SSEHub{subs: make(map[string]*Subscription)}
}

// Subscribe registers a stream. A nil filter receives every event. When
// lastEventID is still inside the replay window, the events after it that
// pass the filter are queued first.
func (h *SSEHub) Subscribe(filter ActivityFilter, lastEventID string) *Subscription {
	ch := make(chan ActivityEvent, subscriberBuffer)
	sub := &Subscription{ID: uuid.NewString(), Events: ch, ch: ch, filter: filter}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	for _, ev := range h.since(lastEventID) {
		if sub.accepts(ev) {
			sub.offer(ev)
		}
	}
	h.subs[sub.ID] = sub
	return sub
}

// since returns the buffered events after id, or nothing when id is empty
// or has aged out.
func (h *SSEHub) since(id string) []ActivityEvent {
	if id == "" {
		return nil
	}
	for i := len(h.recent) - 1; i >= 0; i-- {
		if h.recent[i].ID == id {
			return h.recent[i+1:]
		}
	}
	return nil
}

func (h *SSEHub) seen(id string) bool {
	if id == "" {
		return false
	}
	for i := range h.recent {
		if h.recent[i].ID == id {
			return true
		}
	}
	return false
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once and after Close.
func (h *SSEHub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; ok {
		delete(h.subs, sub.ID)
		close(sub.ch)
	}
}

// Publish delivers ev to every subscriber whose filter accepts it. An
// event whose id is still in the replay window was already delivered and
// is ignored, so queue redeliveries do not repeat on the stream.
func (h *SSEHub) Publish(ev ActivityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.seen(ev.ID) {
		return
	}

	h.recent = append(h.recent, ev)
	if len(h.recent) > replayWindow {
		h.recent = append(h.recent[:0:0], h.recent[len(h.recent)-replayWindow:]...)
	}

	for _, sub := range h.subs {
		if sub.accepts(ev) && !sub.offer(ev) {
			metrics.ActivityEvents.WithLabelValues("sse", "dropped").Inc()
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *SSEHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every stream. Later subscriptions are closed immediately and
// later events are discarded.
func (h *SSEHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	h.recent = nil
}
