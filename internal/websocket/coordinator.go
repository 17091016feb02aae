package websocket

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/observer/tandem/internal/domain"
	"github.com/observer/tandem/internal/livekit"
	"github.com/observer/tandem/internal/metrics"
)

// UserSource is the slice of persistence the hub reads. Implemented by
// *database.UserRepository.
type UserSource interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListTeammates(ctx context.Context, teamID int64, excludeUserID string) ([]domain.User, error)
}

// TokenMinter issues the media grants one participant needs to join a
// room. Implemented by *livekit.Issuer.
type TokenMinter interface {
	MintRoomTokens(room string, participant *domain.User) (livekit.TokenSet, error)
}

// Coordinator turns an accepted ring into a working call: it forwards
// the acceptance, allocates a room, mints grants for both sides and
// hands them out. It keeps no call state between messages; the client
// mediates the protocol, so an accept for a caller nobody rang still
// mints tokens as long as both user rows exist.
type Coordinator struct {
	users  UserSource
	minter TokenMinter
	router *Router
	logger *slog.Logger
}

// NewCoordinator creates a call coordinator.
func NewCoordinator(users UserSource, minter TokenMinter, router *Router, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		users:  users,
		minter: minter,
		router: router,
		logger: logger.With("component", "coordinator"),
	}
}

// Accept drives call setup after calleeID answered callerID's ring.
// Both token sets are minted before either is published: a failure
// anywhere produces the same error frame on both channels and no
// call_tokens at all, never a one-sided call.
func (c *Coordinator) Accept(ctx context.Context, accept *Message, callerID, calleeID string) {
	metrics.CallsAccepted.Inc()

	// Let the caller see the acceptance before token work begins.
	c.router.ForwardToCaller(ctx, accept)

	caller, err := c.users.GetByID(ctx, callerID)
	if err != nil {
		c.logger.Error("failed to load caller", "caller_id", callerID, "error", err)
		c.failBoth(ctx, "Failed to get caller", callerID, calleeID)
		return
	}

	callee, err := c.users.GetByID(ctx, calleeID)
	if err != nil {
		c.logger.Error("failed to load callee", "callee_id", calleeID, "error", err)
		c.failBoth(ctx, "Failed to get callee", callerID, calleeID)
		return
	}

	roomID := uuid.New().String()
	c.logger.Info("creating call room", "room_id", roomID, "caller_id", callerID, "callee_id", calleeID)

	calleeTokens, err := c.minter.MintRoomTokens(roomID, callee)
	if err != nil {
		c.logger.Error("failed to mint callee tokens", "error", err)
		c.failBoth(ctx, "Failed to generate tokens", callerID, calleeID)
		return
	}

	callerTokens, err := c.minter.MintRoomTokens(roomID, caller)
	if err != nil {
		c.logger.Error("failed to mint caller tokens", "error", err)
		c.failBoth(ctx, "Failed to generate tokens", callerID, calleeID)
		return
	}

	// Each side's set names the other side as the participant.
	calleeTokens.Participant = callerID
	callerTokens.Participant = calleeID

	c.router.ForwardTo(ctx, callerID, NewCallTokensMessage(callerTokens))
	c.router.ForwardTo(ctx, calleeID, NewCallTokensMessage(calleeTokens))
}

// failBoth publishes the same error frame to both parties' channels so
// neither side is left holding half a call.
func (c *Coordinator) failBoth(ctx context.Context, errText string, userIDs ...string) {
	metrics.CallSetupFailures.Inc()
	msg := NewErrorMessage(errText)
	for _, userID := range userIDs {
		c.router.ForwardTo(ctx, userID, msg)
	}
}
