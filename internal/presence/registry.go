// Package presence answers "is user U connected right now?" for the
// whole cluster. There is no presence table: a user is present exactly
// while some session holds a subscription on their channel, so the
// registry just asks the bus whether the channel exists.
package presence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/observer/tandem/internal/metrics"
	"github.com/observer/tandem/internal/pubsub"
)

// Status is the answer to a presence lookup. Unknown means the bus
// could not be asked; callers pick their own fallback (the call router
// treats it as offline so nobody rings a dead channel).
type Status int

const (
	StatusOffline Status = iota
	StatusOnline
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusOnline:
		return "online"
	default:
		return "unknown"
	}
}

// ChannelCounter is the slice of the bus the registry needs.
type ChannelCounter interface {
	HasSubscribers(ctx context.Context, topic string) (bool, error)
}

// Registry performs presence lookups through a circuit breaker so a
// flapping bus degrades to fast Unknown answers instead of stalling
// every call request behind Redis timeouts.
type Registry struct {
	bus    ChannelCounter
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewRegistry creates a presence registry on top of the given bus.
func NewRegistry(bus ChannelCounter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	st := gobreaker.Settings{
		Name:        "presence",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("presence breaker state change", "from", from.String(), "to", to.String())
		},
	}

	return &Registry{
		bus:    bus,
		cb:     gobreaker.NewCircuitBreaker(st),
		logger: logger.With("component", "presence"),
	}
}

// Check reports whether the user's channel has at least one subscriber
// anywhere in the cluster.
func (r *Registry) Check(ctx context.Context, userID string) Status {
	topic := pubsub.Topics.User(userID)

	result, err := r.cb.Execute(func() (interface{}, error) {
		return r.bus.HasSubscribers(ctx, topic)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			r.logger.Warn("presence breaker open, reporting unknown", "user_id", userID)
		} else {
			r.logger.Error("presence lookup failed", "user_id", userID, "error", err)
		}
		metrics.PresenceChecks.WithLabelValues(StatusUnknown.String()).Inc()
		return StatusUnknown
	}

	status := StatusOffline
	if result.(bool) {
		status = StatusOnline
	}
	metrics.PresenceChecks.WithLabelValues(status.String()).Inc()
	return status
}

// IsOnline collapses Unknown to false: when the bus cannot be asked,
// callers behave as if the user were offline.
func (r *Registry) IsOnline(ctx context.Context, userID string) bool {
	return r.Check(ctx, userID) == StatusOnline
}
