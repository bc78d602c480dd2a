// Package observe re-delivers change notifications after committed
// writes. Publishing is fire-and-forget and never runs inside a store
// atomic unit; subscribers that fall behind drop events instead of
// blocking the writer.
package observe

import (
	"log"
	"sync"
	"time"
)

const (
	TopicProducts   = "products"
	TopicSales      = "sales"
	TopicPurchases  = "purchases"
	TopicCategories = "categories"
	TopicSuppliers  = "suppliers"
	TopicUsers      = "users"
)

type Event struct {
	Topic    string    `json:"topic"`
	Action   string    `json:"action"`
	EntityID string    `json:"entity_id,omitempty"`
	At       time.Time `json:"at"`
}

type subscriber struct {
	topic string
	ch    chan Event
}

type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers interest in one topic. An empty topic receives
// everything. The returned cancel func must be called when done.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	sub := &subscriber{topic: topic, ch: make(chan Event, 16)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
			h.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish delivers to every matching subscriber without blocking. Full
// subscriber buffers drop the event.
func (h *Hub) Publish(topic, action, entityID string) {
	event := Event{Topic: topic, Action: action, EntityID: entityID, At: time.Now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		if sub.topic != "" && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			log.Printf("[observe] WARN: dropping %s event for slow subscriber", topic)
		}
	}
}

// Close shuts the hub down and closes all subscriber channels.
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
