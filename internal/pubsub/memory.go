package pubsub

import (
	"context"
	"log/slog"
	"sync"
)

// subscriptionQueueSize bounds the per-subscription delivery queue.
// Publishers never block; a subscriber that falls this far behind
// starts losing messages.
const subscriptionQueueSize = 64

// memorySubscription is a subscription to a topic. Each subscription
// drains its own queue from a single goroutine so messages on one topic
// are handled in publish order.
type memorySubscription struct {
	ps      *MemoryPubSub
	topic   string
	handler Handler
	id      uint64
	queue   chan *Message
	cancel  context.CancelFunc
}

func (s *memorySubscription) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			s.handler(ctx, msg)
		}
	}
}

func (s *memorySubscription) Unsubscribe() error {
	s.ps.unsubscribe(s.topic, s.id)
	s.cancel()
	return nil
}

// MemoryPubSub implements PubSub using an in-memory map.
// Suitable for single-process deployments: presence derived from
// HasSubscribers only sees subscriptions made through this instance.
type MemoryPubSub struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]*memorySubscription
	nextID      uint64
	closed      bool
	logger      *slog.Logger
}

// NewMemoryPubSub creates a new in-memory pub/sub instance
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{
		subscribers: make(map[string]map[uint64]*memorySubscription),
		logger:      slog.Default().With("component", "pubsub", "backend", "memory"),
	}
}

// Publish sends a message to all subscribers of the topic
func (ps *MemoryPubSub) Publish(ctx context.Context, topic string, msg *Message) error {
	ps.mu.RLock()
	if ps.closed {
		ps.mu.RUnlock()
		return ErrClosed
	}

	subs, ok := ps.subscribers[topic]
	if !ok || len(subs) == 0 {
		ps.mu.RUnlock()
		ps.logger.Warn("no subscribers for topic", "topic", topic, "msg_type", msg.Type)
		return nil
	}

	// Copy subscriptions to avoid holding lock during enqueue
	targets := make([]*memorySubscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	ps.mu.RUnlock()

	ps.logger.Debug("publishing to topic", "topic", topic, "msg_type", msg.Type, "subscriber_count", len(targets))

	// Stamp the topic the way the Redis transport does on receive.
	delivered := *msg
	delivered.Topic = topic

	for _, sub := range targets {
		select {
		case sub.queue <- &delivered:
		default:
			ps.logger.Warn("subscriber queue full, dropping message", "topic", topic, "msg_type", msg.Type)
		}
	}

	return nil
}

// Subscribe registers a handler for the given topic
func (ps *MemoryPubSub) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil, ErrClosed
	}

	ps.nextID++
	id := ps.nextID

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &memorySubscription{
		ps:      ps,
		topic:   topic,
		handler: handler,
		id:      id,
		queue:   make(chan *Message, subscriptionQueueSize),
		cancel:  cancel,
	}

	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[uint64]*memorySubscription)
	}
	ps.subscribers[topic][id] = sub

	go sub.run(subCtx)

	return sub, nil
}

func (ps *MemoryPubSub) unsubscribe(topic string, id uint64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if subs, ok := ps.subscribers[topic]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(ps.subscribers, topic)
		}
	}
}

// HasSubscribers reports whether the topic has at least one local
// subscription.
func (ps *MemoryPubSub) HasSubscribers(ctx context.Context, topic string) (bool, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.closed {
		return false, ErrClosed
	}
	return len(ps.subscribers[topic]) > 0, nil
}

// Close shuts down the pub/sub and prevents new operations
func (ps *MemoryPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true

	for _, subs := range ps.subscribers {
		for _, sub := range subs {
			sub.cancel()
		}
	}
	ps.subscribers = make(map[string]map[uint64]*memorySubscription)
	return nil
}

// SubscriberCount returns the number of subscribers for a topic (useful for testing)
func (ps *MemoryPubSub) SubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// TopicCount returns the number of active topics (useful for testing)
func (ps *MemoryPubSub) TopicCount() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers)
}
