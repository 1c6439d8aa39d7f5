package frontdesk

import (
	"sync"
	"time"
)

// EventType names what changed.
type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventStale    EventType = "stale"
	EventMutation EventType = "mutation"
)

// Event tells subscribers to re-read the grid.
type Event struct {
	Type       EventType `json:"type"`
	Generation uint64    `json:"generation,omitempty"`
	Stale      bool      `json:"stale"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

const subscriberBuffer = 16

// broker fans events out to subscribers. A subscriber that falls behind
// misses events rather than blocking the console.
type broker struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close ends every subscription; later subscribers get a closed channel.
func (b *broker) close() {
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
