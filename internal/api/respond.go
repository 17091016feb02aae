package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/observer/tandem/internal/auth"
	"github.com/observer/tandem/internal/domain"
)

// UserSource is the slice of persistence the HTTP handlers read.
// Implemented by *database.UserRepository.
type UserSource interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListTeammates(ctx context.Context, teamID int64, excludeUserID string) ([]domain.User, error)
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requireUser resolves the request's email claim to a user row. The
// auth middleware only verified the token; the row can be gone by now,
// which is also a 401. Writes the error response itself, so callers
// just bail when ok is false.
func requireUser(w http.ResponseWriter, r *http.Request, users UserSource, logger *slog.Logger) (*domain.User, bool) {
	email, ok := auth.GetEmail(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	user, err := users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return nil, false
		}
		logger.Error("failed to load user", "email", email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	return user, true
}
