package websocket

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/observer/tandem/internal/auth"
	"github.com/observer/tandem/internal/presence"
	"github.com/observer/tandem/internal/pubsub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Desktop clients connect from tauri:// and file:// origins, so the
	// usual same-origin check does not apply.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades authenticated requests into signaling sessions and
// carries the dependencies every session shares.
type Handler struct {
	bus         pubsub.PubSub
	users       UserSource
	registry    *presence.Registry
	router      *Router
	coordinator *Coordinator
	logger      *slog.Logger
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(bus pubsub.PubSub, users UserSource, registry *presence.Registry, router *Router, coordinator *Coordinator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bus:         bus,
		users:       users,
		registry:    registry,
		router:      router,
		coordinator: coordinator,
		logger:      logger.With("component", "websocket"),
	}
}

// ServeHTTP resolves the authenticated user, upgrades the connection
// and blocks until the session ends. Auth failures are rejected before
// the upgrade, so they never allocate a subscription or any other
// session state.
//
//	@Summary		Signaling WebSocket
//	@Description	Upgrades to a WebSocket carrying presence and call-setup messages
//	@Tags			websocket
//	@Security		BearerAuth
//	@Success		101	{string}	string	"Switching Protocols"
//	@Failure		401	{string}	string	"Unauthorized"
//	@Router			/api/auth/websocket [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	email, ok := auth.GetEmail(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		h.logger.Warn("websocket auth failed", "email", email, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	// Blocks for the life of the connection. The request context stays
	// valid exactly that long, so the session runs under it.
	session := newSession(h, conn, user)
	_ = session.Run(r.Context())
}
