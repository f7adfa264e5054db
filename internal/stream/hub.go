// Package stream fans seat-state transitions out to SSE subscribers.
// Delivery is best-effort and at-most-once per connection: a subscriber that
// cannot keep up loses events and is expected to reconcile with a full seat
// snapshot, which is why the client contract pairs the stream with a
// periodic refresh.
package stream

import (
	"sync"

	"github.com/lenticket/ticketing/internal/model"
)

// subscriberBuffer bounds how far one slow connection may lag before events
// are dropped for it.  Publishing never blocks the seat transition path.
const subscriberBuffer = 64

// Subscriber is one stream connection.  Events arrive on C in the order
// their transitions were committed for any given seat.
type Subscriber struct {
	C chan model.SeatEvent
}

// Hub is a publish-only fan-out keyed by schedule.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]map[*Subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]map[*Subscriber]struct{})}
}

// Subscribe registers a new connection for scheduleID.
func (h *Hub) Subscribe(scheduleID uint64) *Subscriber {
	sub := &Subscriber{C: make(chan model.SeatEvent, subscriberBuffer)}
	h.mu.Lock()
	set, ok := h.subs[scheduleID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[scheduleID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes the connection.  Safe to call more than once.
func (h *Hub) Unsubscribe(scheduleID uint64, sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[scheduleID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, scheduleID)
		}
	}
	h.mu.Unlock()
}

// Publish delivers evt to every subscriber of its schedule.  A full buffer
// drops the event for that subscriber only; everyone else still gets it.
func (h *Hub) Publish(evt model.SeatEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[evt.ScheduleID] {
		select {
		case sub.C <- evt:
		default: // slow consumer, drop
		}
	}
}

// SubscriberCount reports how many connections are registered for a
// schedule.  Used by tests and the health surface.
func (h *Hub) SubscriberCount(scheduleID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[scheduleID])
}
