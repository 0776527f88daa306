package events

import (
	"sync"
	"time"
)

// Kind names the mutation that produced a Change.
type Kind string

const (
	MealSaved   Kind = "saved"
	MealDeleted Kind = "deleted"
	MealsClear  Kind = "cleared"
)

// Change signals that the meal collection was mutated. Subscribers are
// expected to re-query rather than apply the change themselves.
type Change struct {
	Kind Kind      `json:"kind"`
	ID   string    `json:"id,omitempty"`
	At   time.Time `json:"at"`
}

// subscriberBuffer bounds how many undelivered changes a subscriber may lag
// behind before further changes are dropped for it.
const subscriberBuffer = 8

// Broker fans changes out to subscribers. Publish never blocks.
type Broker struct {
	mu     sync.RWMutex
	subs   map[chan Change]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Change]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func unregisters
// it and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish delivers c to every subscriber with room in its buffer.
func (b *Broker) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// Subscribers reports the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive an
// already-closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
