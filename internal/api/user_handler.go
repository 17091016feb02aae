package api

import (
	"log/slog"
	"net/http"

	"github.com/observer/tandem/internal/domain"
	"github.com/observer/tandem/internal/presence"
)

// UserHandler serves the authenticated user's own record and the
// presence-annotated teammates listing.
type UserHandler struct {
	users    UserSource
	registry *presence.Registry
	logger   *slog.Logger
}

func NewUserHandler(users UserSource, registry *presence.Registry, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:    users,
		registry: registry,
		logger:   logger,
	}
}

// Me godoc
//
//	@Summary		Get authenticated user
//	@Description	Return the user record behind the bearer token
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	domain.User
//	@Failure		401	{object}	map[string]string
//	@Router			/api/auth/user [get]
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Teammates godoc
//
//	@Summary		List teammates with presence
//	@Description	Return the user's team members, each annotated with is_active from the presence registry
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		domain.Teammate
//	@Failure		401	{object}	map[string]string
//	@Router			/api/auth/teammates [get]
func (h *UserHandler) Teammates(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.users, h.logger)
	if !ok {
		return
	}

	// Teamless users have no teammates, not an error.
	if user.TeamID == nil {
		writeJSON(w, http.StatusOK, []domain.Teammate{})
		return
	}

	users, err := h.users.ListTeammates(r.Context(), *user.TeamID, user.ID)
	if err != nil {
		h.logger.Error("failed to list teammates", "team_id", *user.TeamID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list teammates")
		return
	}

	teammates := make([]domain.Teammate, 0, len(users))
	for _, u := range users {
		teammates = append(teammates, domain.Teammate{
			User:     u,
			IsActive: h.registry.IsOnline(r.Context(), u.ID),
		})
	}

	writeJSON(w, http.StatusOK, teammates)
}
