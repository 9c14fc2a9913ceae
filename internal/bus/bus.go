// Package bus is an in-process publish/subscribe fan-out. It backs the
// in-memory store used by tests, and stands in for the pub/sub topics a
// Redis-backed store provides in production.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 256

// Message is a single delivery: the topic it was published on and its
// opaque payload.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription represents an active subscription to one or more exact topic
// names (a runner typically subscribes to several channel topics plus its
// own private topic in a single call).
type Subscription struct {
	id     int
	topics map[string]struct{}
	ch     chan Message
	bus    *Bus
}

// Ch returns the channel to receive messages on.
func (s *Subscription) Ch() <-chan Message {
	return s.ch
}

// Close unsubscribes and closes the channel.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s)
}

// Bus is a simple in-process pub/sub message bus with exact topic matching.
type Bus struct {
	mu              sync.RWMutex
	subs            map[int]*Subscription
	nextID          int
	logger          *slog.Logger
	droppedEvents   atomic.Int64
	lastDropWarning atomic.Int64 // last threshold at which a warning was logged
}

// New creates a new Bus.
func New() *Bus {
	return NewWithLogger(nil)
}

// NewWithLogger creates a new Bus with an optional logger for observability.
func NewWithLogger(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]*Subscription),
		logger: logger,
	}
}

// Subscribe creates a subscription matching any of the given exact topic
// names. The returned channel has a buffer of 256 messages; slow consumers
// will miss messages (non-blocking send).
func (b *Bus) Subscribe(topics ...string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	sub := &Subscription{
		id:     b.nextID,
		topics: set,
		ch:     make(chan Message, defaultBufferSize),
		bus:    b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.ch)
	}
}

// Publish sends payload to all subscribers registered for topic.
// Delivery is non-blocking: if a subscriber's buffer is full, the message is dropped.
func (b *Bus) Publish(topic string, payload []byte) {
	msg := Message{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if _, ok := sub.topics[topic]; !ok {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Buffer full - increment counter instead of logging per-drop (avoid I/O spike).
			newCount := b.droppedEvents.Add(1)
			b.maybeLogDropWarning(newCount, topic)
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// DroppedEventCount returns the total number of messages dropped due to full buffers.
func (b *Bus) DroppedEventCount() int64 {
	return b.droppedEvents.Load()
}

// dropThreshold returns the next exponential threshold (1, 10, 100, 1000, ...) at or below count.
func dropThreshold(count int64) int64 {
	threshold := int64(1)
	for threshold*10 <= count {
		threshold *= 10
	}
	return threshold
}

// maybeLogDropWarning logs a warning when dropped message count crosses an exponential threshold.
// Uses CompareAndSwap to avoid duplicate logs from concurrent publishers.
func (b *Bus) maybeLogDropWarning(newCount int64, topic string) {
	if b.logger == nil {
		return
	}
	threshold := dropThreshold(newCount)
	if newCount < threshold {
		return
	}
	// Only log when we exactly hit a threshold boundary.
	if newCount != threshold {
		return
	}
	lastWarned := b.lastDropWarning.Load()
	if threshold <= lastWarned {
		return
	}
	if b.lastDropWarning.CompareAndSwap(lastWarned, threshold) {
		b.logger.Warn("bus_dropped_messages_reached_threshold",
			slog.Int64("count", newCount),
			slog.String("topic", topic),
		)
	}
}
