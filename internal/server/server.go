package server

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/observer/tandem/internal/api"
	"github.com/observer/tandem/internal/auth"
	"github.com/observer/tandem/internal/config"
	"github.com/observer/tandem/internal/database"
	"github.com/observer/tandem/internal/metrics"
	"github.com/observer/tandem/internal/middleware"
	"github.com/observer/tandem/internal/websocket"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	DB                 *database.DB
	Tokens             *auth.TokenService
	UserHandler        *api.UserHandler
	WatercoolerHandler *api.WatercoolerHandler
	DebugHandler       *api.DebugHandler
	WSHandler          *websocket.Handler
	RateLimiter        *middleware.RateLimiter
	Logger             *slog.Logger
}

// New creates an HTTP server with all routes configured. The timeouts
// bound ordinary HTTP exchanges; gorilla clears the deadlines when it
// hijacks the connection, so they do not cut websockets short.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	registerRoutes(mux, cfg, deps)

	handler := chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, deps *Dependencies) {
	// Health check - essential for docker, k8s, load balancers
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := deps.DB.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable","environment":"` + cfg.Env + `"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","environment":"` + cfg.Env + `"}`))
	})

	// Prometheus exposition
	mux.Handle("GET /metrics", metrics.Handler())

	// =========================================================================
	// Public routes
	// =========================================================================

	// Guests redeem watercooler invites here; auth is the token in the
	// query string, not a bearer.
	mux.HandleFunc("GET /api/watercooler/meet-redirect", deps.WatercoolerHandler.MeetRedirect)

	// =========================================================================
	// Protected routes (bearer token; rate limited per user)
	// =========================================================================
	authMiddleware := auth.Middleware(deps.Tokens)
	limited := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(deps.RateLimiter.Middleware(h))
	}

	mux.Handle("GET /api/auth/user", limited(deps.UserHandler.Me))
	mux.Handle("GET /api/auth/teammates", limited(deps.UserHandler.Teammates))
	mux.Handle("GET /api/auth/watercooler", limited(deps.WatercoolerHandler.Join))
	mux.Handle("GET /api/auth/watercooler/anonymous", limited(deps.WatercoolerHandler.AnonymousLink))
	mux.Handle("GET /api/auth/livekit/server-url", limited(deps.WatercoolerHandler.ServerURL))

	// One long-lived request per client; exempt from the rate limiter.
	mux.Handle("GET /api/auth/websocket", authMiddleware(deps.WSHandler))

	// =========================================================================
	// Debug routes - only mounted when ENABLE_DEBUG_ENDPOINTS=true
	// =========================================================================
	if cfg.EnableDebugEndpoints {
		mux.HandleFunc("GET /api/debug/call-token", deps.DebugHandler.CallToken)
		mux.HandleFunc("GET /api/debug/jwt", deps.DebugHandler.JWT)
	}

	// Swagger UI, development only
	if cfg.IsDevelopment() {
		mux.Handle("GET /swagger/", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}
}
