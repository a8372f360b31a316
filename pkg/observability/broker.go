package observability

import (
	"context"
	"sync"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// Event is one notification. Exactly one of Node, Variable or Graph is set.
type Event struct {
	Type     domain.EventType      `json:"type"`
	Node     *domain.NodeEvent     `json:"node,omitempty"`
	Variable *domain.VariableEvent `json:"variable,omitempty"`
	Graph    *domain.GraphDiff     `json:"graph,omitempty"`
}

// Broker fans lifecycle events out to any number of subscribers.
// Slow subscribers lose events instead of blocking execution.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Hooks returns lifecycle hooks publishing into the broker.
func (b *Broker) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStatusChange: func(_ context.Context, e *domain.NodeEvent) {
			b.Publish(Event{Type: domain.EventStatusChange, Node: e})
		},
		OnVariableChange: func(_ context.Context, e *domain.VariableEvent) {
			b.Publish(Event{Type: domain.EventVariableChange, Variable: e})
		},
	}
}
