// Package pubsub provides the interface-driven message bus the signaling
// hub routes through. The Redis backend spans processes; the in-memory
// backend is for single-process development and tests.
package pubsub

import (
	"context"
	"encoding/json"
)

// Message is a signaling envelope. On the wire (both the bus and the
// WebSocket) it is exactly {"type":...,"payload":...}; Topic is carried
// out-of-band by the transport and stamped on receive.
type Message struct {
	Topic   string          `json:"-"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler is a callback for processing messages
type Handler func(ctx context.Context, msg *Message)

// Subscription represents an active subscription that can be closed
type Subscription interface {
	// Unsubscribe removes the subscription
	Unsubscribe() error
}

// PubSub defines the interface for publish/subscribe operations.
// All implementations must be safe for concurrent use.
type PubSub interface {
	// Publish sends a message to all subscribers of the given topic.
	// Returns error if the message could not be published.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers a handler for messages on the given topic.
	// The handler is called for each message published to the topic.
	// Returns a Subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// HasSubscribers reports whether at least one subscription exists on
	// the topic. For the Redis backend this is cluster-wide, which is
	// what makes channel existence usable as a presence signal.
	HasSubscribers(ctx context.Context, topic string) (bool, error)

	// Close shuts down the pub/sub system and releases resources.
	Close() error
}

// TopicBuilder helps construct consistent topic names
type TopicBuilder struct{}

// User returns the per-user signaling channel. Its existence doubles as
// the user's presence signal, so this is the only valid format.
func (t TopicBuilder) User(userID string) string {
	return "channel-user-" + userID
}

// Topics is a helper for building topic names
var Topics = TopicBuilder{}
