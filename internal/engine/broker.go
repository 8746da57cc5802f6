package engine

import (
	"sync"

	"github.com/Shabbin/teaching-platform-sub001/internal/model"
)

const subscriberBuffer = 32

// Broker is the single subscription channel all UI surfaces attach to.
// Reconciliation publishes here once, instead of per-screen callbacks.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan model.ChangeEvent
	next   int
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan model.ChangeEvent)}
}

// Subscribe registers a new subscriber and returns its event channel together
// with an unsubscribe function. The channel is closed on unsubscribe or when
// the broker shuts down.
func (b *Broker) Subscribe() (<-chan model.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.ChangeEvent, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers an event to every subscriber. Slow subscribers with a full
// buffer miss the event; they re-read the stores on their next event, so a
// dropped notification cannot desynchronize them permanently.
func (b *Broker) Publish(ev model.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close shuts the broker down and closes all subscriber channels.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Len returns the number of active subscribers.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
