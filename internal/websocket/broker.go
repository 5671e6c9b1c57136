package websocket

import (
	"context"
	"sync"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
// before events are dropped for it.
const subscriberBuffer = 64

// Broker fans proctor events out to subscribers.
type Broker interface {
	Publish(ctx context.Context, ev ProctorEvent) error
	// Subscribe returns a channel of events and a function that ends the
	// subscription and closes the channel.
	Subscribe(ctx context.Context) (<-chan ProctorEvent, func(), error)
}

// Hub is an in-process Broker.
type Hub struct {
	mu   sync.Mutex
	subs map[chan ProctorEvent]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan ProctorEvent]struct{})}
}

// Publish delivers ev to every subscriber without blocking.
func (h *Hub) Publish(ctx context.Context, ev ProctorEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe(ctx context.Context) (<-chan ProctorEvent, func(), error) {
	ch := make(chan ProctorEvent, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
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
	return ch, cancel, nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
