package broadcast

import (
	"sync"

	"github.com/rs/zerolog/log"

	"damdam/internal/model"
)

// subscriberBufferSize bounds how far one receiver may lag behind the
// room before being dropped.
const subscriberBufferSize = 64

// Hub fans outbound chat events to every subscriber of a room. Delivery
// is in publish order per room; there is no ordering across rooms and
// no replay — history lives in the session store and the archive.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
}

// Subscriber is one receiver of a room's event stream.
type Subscriber struct {
	hub    *Hub
	roomID string

	mu     sync.Mutex
	ch     chan model.OutboundEvent
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a receiver for future publishes to the room.
// Events published before the subscription are not replayed.
func (h *Hub) Subscribe(roomID string) *Subscriber {
	sub := &Subscriber{
		hub:    h,
		roomID: roomID,
		ch:     make(chan model.OutboundEvent, subscriberBufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Subscriber]struct{})
		h.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish delivers event to every current subscriber of the room.
// A subscriber whose buffer is full is dropped rather than allowed to
// stall the room or reorder its feed.
func (h *Hub) Publish(roomID string, event model.OutboundEvent) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.rooms[roomID]))
	for sub := range h.rooms[roomID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.send(event) {
			log.Warn().
				Str("room_id", roomID).
				Msg("dropping slow broadcast subscriber")
			sub.Close()
		}
	}
}

// SubscriberCount reports the number of active subscribers of a room.
func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) remove(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.rooms[sub.roomID]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.roomID)
	}
}

// Events is the subscriber's receive stream. It is closed when the
// subscriber unsubscribes or is dropped.
func (s *Subscriber) Events() <-chan model.OutboundEvent {
	return s.ch
}

// Close unsubscribes and closes the event stream. Safe to call twice.
func (s *Subscriber) Close() {
	s.hub.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send enqueues without blocking; false means the buffer is full.
func (s *Subscriber) send(event model.OutboundEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}
