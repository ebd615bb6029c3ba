// Package memory implements an in-process event bus. Each subscriber
// drains its own buffered channel, so events on a topic reach every
// handler in publish order. Delivery is best effort with no
// persistence, which is enough for single-process deployments and
// tests.
package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

// subscriberBuffer bounds how far a subscriber may lag behind the
// publisher before events are dropped.
const subscriberBuffer = 64

type subscription struct {
	id int
	ch chan domain.Event
}

// Bus implements ports.EventBus with in-memory fan-out.
type Bus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	nextID      int
	subscribers map[string][]*subscription
}

// NewBus creates an in-memory event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:      logger,
		subscribers: make(map[string][]*subscription),
	}
}

var _ ports.EventBus = (*Bus)(nil)

// Publish queues the event for every subscriber of the topic. A
// subscriber whose buffer is full has the event dropped rather than
// stalling the publisher.
func (b *Bus) Publish(ctx context.Context, topic string, event domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[topic] {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("topic", topic),
				zap.String("event_type", string(event.Type)))
		}
	}
	return nil
}

// Subscribe registers a handler for a topic. A dedicated goroutine
// drains the subscription's channel, so a single subscriber sees events
// in the order they were published. The subscription is removed when
// ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, ch: make(chan domain.Event, subscriberBuffer)}
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	go func() {
		for event := range sub.ch {
			if err := handler(ctx, event); err != nil {
				b.logger.Warn("event handler failed",
					zap.String("topic", topic),
					zap.String("event_type", string(event.Type)),
					zap.Error(err))
			}
		}
	}()

	go func() {
		<-ctx.Done()
		b.unsubscribe(topic, sub.id)
	}()

	return nil
}

// Close drops all subscriptions and stops their drain goroutines.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.subscribers = make(map[string][]*subscription)
	return nil
}

// unsubscribe removes the subscription and closes its channel. Channel
// close happens under the write lock so it cannot race a Publish send,
// which holds the read lock.
func (b *Bus) unsubscribe(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}
