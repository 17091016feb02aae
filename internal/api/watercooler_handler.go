package api

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/observer/tandem/internal/auth"
	"github.com/observer/tandem/internal/domain"
	"github.com/observer/tandem/internal/livekit"
)

// meetBaseURL is LiveKit's hosted client. The redirect hands it the SFU
// address and the freshly minted grant in the query string.
const meetBaseURL = "https://meet.livekit.io/custom"

// TeamSource is the team lookup the invite flow needs. Implemented by
// *database.TeamRepository.
type TeamSource interface {
	GetByID(ctx context.Context, id int64) (*domain.Team, error)
}

// WatercoolerHandler serves the always-on team room: media grants for
// registered members, short-lived invite links, and the public redirect
// that turns an invite link into an SFU session for an anonymous guest.
type WatercoolerHandler struct {
	users  UserSource
	teams  TeamSource
	issuer *livekit.Issuer
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewWatercoolerHandler(users UserSource, teams TeamSource, issuer *livekit.Issuer, tokens *auth.TokenService, logger *slog.Logger) *WatercoolerHandler {
	return &WatercoolerHandler{
		users:  users,
		teams:  teams,
		issuer: issuer,
		tokens: tokens,
		logger: logger,
	}
}

// Join godoc
//
//	@Summary		Join the team watercooler
//	@Description	Mint media grants for the caller's team watercooler room
//	@Tags			watercooler
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	livekit.TokenSet
//	@Failure		400	{object}	map[string]string	"User has no team"
//	@Failure		401	{object}	map[string]string
//	@Router			/api/auth/watercooler [get]
func (h *WatercoolerHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	if user.TeamID == nil {
		writeError(w, http.StatusBadRequest, "User is not part of any team")
		return
	}

	room := domain.WatercoolerRoom(*user.TeamID)
	tokens, err := h.issuer.MintRoomTokens(room, user)
	if err != nil {
		h.logger.Error("failed to mint watercooler tokens", "room", room, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}
	tokens.Participant = user.ID

	writeJSON(w, http.StatusOK, tokens)
}

// AnonymousLink godoc
//
//	@Summary		Invite a guest to the watercooler
//	@Description	Mint a 10-minute invite link a guest can open without an account
//	@Tags			watercooler
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]string	"redirect_url"
//	@Failure		400	{object}	map[string]string	"User has no team"
//	@Failure		401	{object}	map[string]string
//	@Router			/api/auth/watercooler/anonymous [get]
func (h *WatercoolerHandler) AnonymousLink(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	if user.TeamID == nil {
		writeError(w, http.StatusBadRequest, "User is not part of any team")
		return
	}

	// The invite outlives this request, so make sure the team it names
	// still exists before signing anything.
	if _, err := h.teams.GetByID(r.Context(), *user.TeamID); err != nil {
		if errors.Is(err, domain.ErrTeamNotFound) {
			writeError(w, http.StatusBadRequest, "Team not found")
			return
		}
		h.logger.Error("failed to load team", "team_id", *user.TeamID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := h.tokens.GenerateAnonymousRoomToken(*user.TeamID)
	if err != nil {
		h.logger.Error("failed to mint anonymous room token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"redirect_url": "/api/watercooler/meet-redirect?token=" + token,
	})
}

// MeetRedirect godoc
//
//	@Summary		Redeem a watercooler invite
//	@Description	Validate an invite token, mint an anonymous audio grant and redirect to the hosted meet client
//	@Tags			watercooler
//	@Param			token	query	string	true	"invite token"
//	@Success		302	{string}	string	"redirect to meet.livekit.io"
//	@Failure		400	{object}	map[string]string	"missing token"
//	@Failure		401	{object}	map[string]string	"invalid, expired or wrong-purpose token"
//	@Router			/api/watercooler/meet-redirect [get]
func (h *WatercoolerHandler) MeetRedirect(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		writeError(w, http.StatusBadRequest, "Missing token parameter")
		return
	}

	teamID, err := h.tokens.ValidateAnonymousRoomToken(tokenString)
	if err != nil {
		h.logger.Warn("rejected watercooler invite", "error", err)
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	// Guests never touch the user table; they exist only as an SFU
	// identity for the lifetime of the grant.
	identity := "anonymous-" + rand.Text()[:4]

	grant, err := h.issuer.MintRedirectToken(domain.WatercoolerRoom(teamID), identity)
	if err != nil {
		h.logger.Error("failed to mint redirect grant", "team_id", teamID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}

	http.Redirect(w, r, fmt.Sprintf("%s?liveKitUrl=%s&token=%s", meetBaseURL, h.issuer.ServerURL(), grant), http.StatusFound)
}

// ServerURL godoc
//
//	@Summary		LiveKit server URL
//	@Description	Return the SFU address clients should dial
//	@Tags			watercooler
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	map[string]string	"url"
//	@Failure		401	{object}	map[string]string
//	@Router			/api/auth/livekit/server-url [get]
func (h *WatercoolerHandler) ServerURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r, h.users, h.logger); !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": h.issuer.ServerURL()})
}
