// Package channel implements the live delivery channel: an in-process fan-out hub
// of socket subscribers, optionally bridged between server instances over Redis.
//
// The hub keeps no history. A subscriber only receives events published while it
// is connected, and a slow subscriber only loses its own events.
package channel

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber queue length used when none is configured.
const DefaultBuffer = 16

// Event is one message pushed to subscribers.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Channel is the fan-out contract used by the notification service.
type Channel interface {
	Connect() *Subscriber
	Disconnect(id string)
	Publish(event string, payload any) int
}

// Subscriber is one connected client. C is closed on disconnect.
type Subscriber struct {
	ID string
	C  <-chan Event

	queue chan Event
}

// Hub is the in-memory Channel implementation.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	buffer int
	log    *zap.Logger
}

// NewHub creates an empty hub. A non-positive buffer uses DefaultBuffer.
func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]*Subscriber),
		buffer: buffer,
		log:    log,
	}
}

// Connect registers a new subscriber under a fresh session id. No backlog is replayed.
func (h *Hub) Connect() *Subscriber {
	q := make(chan Event, h.buffer)
	sub := &Subscriber{ID: uuid.New().String(), C: q, queue: q}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	n := len(h.subs)
	h.mu.Unlock()

	h.log.Info("subscriber connected", zap.String("id", sub.ID), zap.Int("subscribers", n))
	return sub
}

// Disconnect removes a subscriber and closes its queue. Unknown ids are ignored.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.queue)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		h.log.Info("subscriber disconnected", zap.String("id", id), zap.Int("subscribers", n))
	}
}

// Publish queues the event for every current subscriber without blocking.
// A subscriber whose queue is full misses this event. Returns how many
// subscribers the event was queued for.
func (h *Hub) Publish(event string, payload any) int {
	ev := Event{Name: event, Data: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, sub := range h.subs {
		select {
		case sub.queue <- ev:
			delivered++
		default:
			h.log.Warn("subscriber queue full, dropping event",
				zap.String("id", id),
				zap.String("event", event),
			)
		}
	}
	return delivered
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		close(sub.queue)
		delete(h.subs, id)
	}
}
