package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/observer/tandem/internal/metrics"
	"github.com/observer/tandem/internal/presence"
	"github.com/observer/tandem/internal/pubsub"
)

// Router is the one component that publishes to user channels. It makes
// the ring-or-offline decision for new calls and relays everything else
// verbatim. Publishes are best-effort and never retried: a lost message
// surfaces as a non-response and the client retries through its own UX.
type Router struct {
	bus      pubsub.PubSub
	registry *presence.Registry
	logger   *slog.Logger
}

// NewRouter creates a router over the given bus.
func NewRouter(bus pubsub.PubSub, registry *presence.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		bus:      bus,
		registry: registry,
		logger:   logger.With("component", "router"),
	}
}

// InitiateCall rings calleeID on behalf of the caller's session. An
// offline callee short-circuits: the caller gets callee_offline on its
// own socket and nothing touches the callee's channel. A presence
// lookup that cannot be answered counts as offline so nobody rings a
// dead channel.
func (r *Router) InitiateCall(ctx context.Context, caller *Session, calleeID string) {
	metrics.CallsInitiated.Inc()

	if !r.registry.IsOnline(ctx, calleeID) {
		caller.Send(NewCalleeOfflineMessage(calleeID))
		return
	}

	r.ForwardTo(ctx, calleeID, NewIncomingCallMessage(caller.user.ID))
}

// ForwardToCaller republishes a client's call_reject or call_accept
// envelope, exactly as received, to the channel of the caller it names.
func (r *Router) ForwardToCaller(ctx context.Context, msg *Message) {
	var payload struct {
		CallerID string `json:"caller_id"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		r.logger.Warn("cannot forward message without caller_id", "type", msg.Type, "error", err)
		return
	}
	r.ForwardTo(ctx, payload.CallerID, msg)
}

// ForwardTo publishes msg on userID's channel. Errors are logged and
// swallowed.
func (r *Router) ForwardTo(ctx context.Context, userID string, msg *Message) {
	topic := pubsub.Topics.User(userID)
	err := r.bus.Publish(ctx, topic, &pubsub.Message{Type: msg.Type, Payload: msg.Payload})
	if err != nil {
		r.logger.Error("failed to publish message", "topic", topic, "type", msg.Type, "error", err)
	}
}
