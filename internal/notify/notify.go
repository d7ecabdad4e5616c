// Package notify is an in-process broadcast hub. Order and sale mutations
// publish snapshot events; delivery is best effort and never blocks the
// publisher, so a slow subscriber drops events instead of stalling a sale.
package notify

import (
	"sync"
	"time"
)

// Event is one broadcast snapshot. Payload is the entity as the API would
// render it.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

const (
	EventOrderCreated       = "order.created"
	EventOrderUpdated       = "order.updated"
	EventOrderPaid          = "order.paid"
	EventOrderDeleted       = "order.deleted"
	EventTransactionCreated = "transaction.created"
)

type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]bool
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Event]bool{}}
}

// Subscribe registers a buffered receiver. The returned cancel function
// removes the subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = true
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish broadcasts to every subscriber without blocking. A full subscriber
// buffer loses the event.
func (h *Hub) Publish(eventType string, payload any) {
	ev := Event{Type: eventType, Payload: payload, At: time.Now().UTC()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
