package api

import (
	"log/slog"
	"net/http"

	"github.com/observer/tandem/internal/auth"
	"github.com/observer/tandem/internal/livekit"
)

// debugCallRoom is deliberately fixed: minting tokens for two users
// puts them in the same room, which is the whole point of the endpoint.
const debugCallRoom = "debug-call-room"

// DebugHandler mints tokens by hand during development. Its routes are
// mounted only when ENABLE_DEBUG_ENDPOINTS=true and are unauthenticated
// by design; never enable them in production.
type DebugHandler struct {
	users  UserSource
	issuer *livekit.Issuer
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewDebugHandler(users UserSource, issuer *livekit.Issuer, tokens *auth.TokenService, logger *slog.Logger) *DebugHandler {
	return &DebugHandler{
		users:  users,
		issuer: issuer,
		tokens: tokens,
		logger: logger,
	}
}

// CallToken godoc
//
//	@Summary		Mint debug call tokens
//	@Description	Mint media grants for the named user into a fixed debug room
//	@Tags			debug
//	@Produce		json
//	@Param			email	query	string	true	"user email"
//	@Success		200	{object}	livekit.TokenSet
//	@Failure		404	{object}	map[string]string	"User not found"
//	@Router			/api/debug/call-token [get]
func (h *DebugHandler) CallToken(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "Missing email parameter")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	tokens, err := h.issuer.MintRoomTokens(debugCallRoom, user)
	if err != nil {
		h.logger.Error("failed to mint debug call tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate tokens")
		return
	}
	tokens.Participant = user.ID

	writeJSON(w, http.StatusOK, tokens)
}

// JWT godoc
//
//	@Summary		Mint a debug bearer token
//	@Description	Mint a bearer token for any email, no questions asked
//	@Tags			debug
//	@Produce		json
//	@Param			email	query	string	true	"email claim"
//	@Success		200	{object}	map[string]string	"email and token"
//	@Router			/api/debug/jwt [get]
func (h *DebugHandler) JWT(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "Missing email parameter")
		return
	}

	token, err := h.tokens.GenerateBearerToken(email)
	if err != nil {
		h.logger.Error("failed to mint debug bearer token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"email": email,
		"token": token,
	})
}
