// internal/bus/bus.go
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AnySource subscribes to a message name regardless of which controller
// published it.
const AnySource = "*"

// Topic addresses messages by the publishing controller's source id (the
// target element id) and the event name, e.g. {"my-modal", "modal:show"}.
type Topic struct {
	Source string
	Name   string
}

func (t Topic) String() string { return t.Source + "/" + t.Name }

// Message is the envelope delivered to subscribers.
type Message struct {
	ID        string
	Timestamp time.Time
	Topic     Topic
	Payload   map[string]any
}

// Handler receives a delivered message.
type Handler func(Message)

type subscription struct {
	handler Handler
	active  bool
}

// Bus is the controller-scoped message bus. Delivery is synchronous and in
// subscription order, so a publish from the event loop is fully handled
// before it returns.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[Topic][]*subscription
	all         []*subscription
	closed      bool
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:      logger.Named("bus"),
		subscribers: make(map[Topic][]*subscription),
	}
}

// Subscribe registers h for topic. Use AnySource as topic.Source to match
// every publisher. The returned func removes the subscription.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	sub := &subscription{handler: h, active: true}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.subscribers[topic] = append(b.subscribers[topic], sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		sub.active = false
		subs := b.subscribers[topic]
		for i, s := range subs {
			if s == sub {
				copy(subs[i:], subs[i+1:])
				subs[len(subs)-1] = nil
				b.subscribers[topic] = subs[:len(subs)-1]
				break
			}
		}
		if len(b.subscribers[topic]) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

// SubscribeAll registers h for every message. The CLI uses it to trace
// widget activity.
func (b *Bus) SubscribeAll(h Handler) func() {
	sub := &subscription{handler: h, active: true}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	b.all = append(b.all, sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		sub.active = false
		for i, s := range b.all {
			if s == sub {
				b.all = append(b.all[:i:i], b.all[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers a message to exact subscribers, then AnySource
// subscribers, then catch-all subscribers.
func (b *Bus) Publish(topic Topic, payload map[string]any) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Topic:     topic,
		Payload:   payload,
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return msg
	}
	// Copy so handlers can subscribe and unsubscribe while we deliver.
	targets := make([]*subscription, 0, 4)
	targets = append(targets, b.subscribers[topic]...)
	if topic.Source != AnySource {
		targets = append(targets, b.subscribers[Topic{Source: AnySource, Name: topic.Name}]...)
	}
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	b.logger.Debug("Publishing message", zap.Stringer("topic", topic), zap.String("id", msg.ID), zap.Int("subscribers", len(targets)))

	for _, sub := range targets {
		b.mu.RLock()
		active := sub.active
		b.mu.RUnlock()
		if active {
			sub.handler(msg)
		}
	}
	return msg
}

// SubscriberCount reports how many subscribers are registered for topic,
// not counting catch-all subscribers.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Shutdown drops every subscription. Later publishes deliver nothing.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, s := range subs {
			s.active = false
		}
	}
	for _, s := range b.all {
		s.active = false
	}
	b.subscribers = make(map[Topic][]*subscription)
	b.all = nil
	b.logger.Debug("Bus shut down.")
}
