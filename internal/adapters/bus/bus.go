// Package bus defines the transport-agnostic publish/subscribe channel
// carrying trigger and configuration messages between devices.
//
// Only the topic contract and an in-memory implementation live here; the
// wire transport that bridges devices is an external collaborator.
package bus

import (
	"context"
	"sync"

	"github.com/Areo-RGB/sprintgates/internal/domain/model"
	"github.com/Areo-RGB/sprintgates/pkg/metrics"
)

// Topic names exchanged between devices.
const (
	TopicGateTrigger    = "gate-trigger"
	TopicClearEvents    = "clear-events"
	TopicConfigChange   = "config-change"
	TopicDistanceChange = "distance-change"
)

// Default bus configuration constants.
const (
	defaultSubscriberBuffer = 32
)

// GateTrigger is the payload of TopicGateTrigger.
type GateTrigger struct {
	Timestamp float64      `json:"timestamp"`
	Source    model.Source `json:"source"`
}

// ClearEvents is the payload of TopicClearEvents.
type ClearEvents struct{}

// ConfigChange is the payload of TopicConfigChange.
type ConfigChange struct {
	Count int `json:"count"`
}

// DistanceChange is the payload of TopicDistanceChange.
type DistanceChange struct {
	Distances []float64 `json:"distances"`
}

// Message is one delivered publication.
type Message struct {
	Topic   string
	Payload any
}

// Bus provides non-blocking publish and channel-based subscribe semantics.
type Bus interface {
	// Publish delivers the payload to every current subscriber of the
	// topic. Slow subscribers drop; publish never blocks.
	Publish(ctx context.Context, topic string, payload any)

	// Subscribe registers for a topic and returns the delivery channel and
	// a cancel function that unregisters and closes it.
	Subscribe(topic string) (<-chan Message, func())

	// Close shuts the bus down and closes all subscriber channels.
	Close()
}

// Option applies a configuration option to the InMemoryBus.
type Option func(*InMemoryBus)

// WithSubscriberBuffer sets the per-subscriber channel buffer.
func WithSubscriberBuffer(n int) Option {
	return func(b *InMemoryBus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// InMemoryBus implements Bus for devices wired in one process and for
// tests.
type InMemoryBus struct {
	buffer int

	mu     sync.RWMutex
	subs   map[string]map[int]chan Message
	nextID int
	closed bool
}

// NewInMemoryBus creates an in-memory bus.
func NewInMemoryBus(opts ...Option) *InMemoryBus {
	b := &InMemoryBus{
		buffer: defaultSubscriberBuffer,
		subs:   make(map[string]map[int]chan Message),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Publish delivers the payload to every subscriber of the topic without
// blocking.
func (b *InMemoryBus) Publish(_ context.Context, topic string, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	metrics.RecordBusPublish(topic)

	msg := Message{Topic: topic, Payload: payload}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
			metrics.RecordBusDrop(topic)
		}
	}
}

// Subscribe registers for a topic.
func (b *InMemoryBus) Subscribe(topic string) (<-chan Message, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Message)
	}
	b.subs[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[topic]; ok {
			if sub, ok := subs[id]; ok {
				delete(subs, id)
				close(sub)
			}
		}
	}
	return ch, cancel
}

// Close shuts the bus down and closes all subscriber channels.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
	}
}
