// Package progress is the topic-based pub/sub bus carrying per-job events
// to subscribers.
package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/caselight/caselight/internal/types"
)

// DefaultBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind is dropped rather than blocking the publisher.
const DefaultBuffer = 1024

// Subscription is one live subscriber on a topic.
type Subscription struct {
	// C delivers events in publish order. Closed when the subscription is
	// cancelled or dropped for falling behind.
	C <-chan types.Event

	topic string
	id    uint64
	ch    chan types.Event
}

// Bus is a topic-keyed publish/subscribe fan-out. Publish never blocks:
// only the orchestrator publishes to a given topic, and slow subscribers
// are dropped past their buffer.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topicState
	buffer int
	nextID uint64
	logger *slog.Logger
}

type topicState struct {
	seq  uint64
	subs map[uint64]*Subscription
}

// NewBus creates a bus. buffer <= 0 uses DefaultBuffer.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics: make(map[string]*topicState),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe attaches to a topic. Events published before the subscription
// are not replayed; the caller reconciles via a status snapshot.
func (b *Bus) Subscribe(topic string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.topics[topic]
	if ts == nil {
		ts = &topicState{subs: make(map[uint64]*Subscription)}
		b.topics[topic] = ts
	}
	b.nextID++
	ch := make(chan types.Event, b.buffer)
	sub := &Subscription{C: ch, topic: topic, id: b.nextID, ch: ch}
	ts.subs[sub.id] = sub
	return sub
}

// Unsubscribe detaches a subscription and closes its channel. Safe to call
// after the subscriber was already dropped.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Bus) removeLocked(sub *Subscription) {
	ts := b.topics[sub.topic]
	if ts == nil {
		return
	}
	if _, ok := ts.subs[sub.id]; !ok {
		return
	}
	delete(ts.subs, sub.id)
	close(sub.ch)
	if len(ts.subs) == 0 && ts.seq == 0 {
		delete(b.topics, sub.topic)
	}
}

// LastSeq returns the sequence number of the most recent event on a topic,
// 0 if none were published.
func (b *Bus) LastSeq(topic string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if ts := b.topics[topic]; ts != nil {
		return ts.seq
	}
	return 0
}

// Publish delivers an event to every subscriber of the topic, assigning the
// next per-topic sequence number. Subscribers whose buffers are full are
// dropped.
func (b *Bus) Publish(topic string, eventType types.EventType, payload map[string]any) types.Event {
	b.mu.Lock()
	ts := b.topics[topic]
	if ts == nil {
		ts = &topicState{subs: make(map[uint64]*Subscription)}
		b.topics[topic] = ts
	}
	ts.seq++
	event := types.Event{
		Seq:     ts.seq,
		TS:      time.Now().UTC(),
		Type:    eventType,
		Payload: payload,
	}

	var dropped []*Subscription
	for _, sub := range ts.subs {
		select {
		case sub.ch <- event:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		b.removeLocked(sub)
	}
	b.mu.Unlock()

	for _, sub := range dropped {
		b.logger.Warn("dropped slow progress subscriber",
			"topic", topic, "subscriber", sub.id)
	}
	return event
}

// Reset clears a topic's state once its job reaches a terminal state and
// all subscribers are gone. Subscribed topics are left alone.
func (b *Bus) Reset(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ts := b.topics[topic]; ts != nil && len(ts.subs) == 0 {
		delete(b.topics, topic)
	}
}
