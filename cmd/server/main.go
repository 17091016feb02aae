package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/observer/tandem/docs"
	"github.com/observer/tandem/internal/api"
	"github.com/observer/tandem/internal/auth"
	"github.com/observer/tandem/internal/config"
	"github.com/observer/tandem/internal/database"
	"github.com/observer/tandem/internal/livekit"
	"github.com/observer/tandem/internal/middleware"
	"github.com/observer/tandem/internal/presence"
	"github.com/observer/tandem/internal/pubsub"
	"github.com/observer/tandem/internal/server"
	"github.com/observer/tandem/internal/websocket"
)

func main() {
	// Structured logging from the start
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if level := parseLogLevel(cfg.LogLevel); level != slog.LevelInfo {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	// Create context for initialization
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	if err := database.EnsureSchema(ctx, db, "migrations"); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	// Repositories (read-only: users and teams are provisioned elsewhere)
	userRepo := database.NewUserRepository(db)
	teamRepo := database.NewTeamRepository(db)

	// Token service (use a default key for dev if not set)
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		if cfg.IsDevelopment() {
			sessionSecret = "dev-session-secret-do-not-use-in-prod!!!" // 40 chars
			slog.Warn("using default session secret - DO NOT USE IN PRODUCTION")
		} else {
			slog.Error("SESSION_SECRET is required in production")
			os.Exit(1)
		}
	}

	tokenService, err := auth.NewTokenService(sessionSecret)
	if err != nil {
		slog.Error("failed to create token service", "error", err)
		os.Exit(1)
	}

	// LiveKit grant issuer (fall back to livekit-server --dev credentials)
	lkKey, lkSecret, lkURL := cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitServerURL
	if lkKey == "" && cfg.IsDevelopment() {
		lkKey, lkSecret, lkURL = "devkey", "secret", "ws://localhost:7880"
		slog.Warn("using livekit dev credentials - DO NOT USE IN PRODUCTION")
	}
	issuer, err := livekit.NewIssuer(lkKey, lkSecret, lkURL)
	if err != nil {
		slog.Error("failed to create livekit issuer", "error", err)
		os.Exit(1)
	}

	// Pub/sub bus. Presence is channel existence on this bus, so the
	// memory backend confines presence to a single process.
	var bus pubsub.PubSub
	if cfg.PubSubType == "memory" {
		slog.Warn("using in-memory pub/sub - presence will not span processes")
		bus = pubsub.NewMemoryPubSub()
	} else {
		bus, err = pubsub.NewRedisPubSub(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
	}
	defer bus.Close()

	// Signaling core
	registry := presence.NewRegistry(bus, logger)
	router := websocket.NewRouter(bus, registry, logger)
	coordinator := websocket.NewCoordinator(userRepo, issuer, router, logger)
	wsHandler := websocket.NewHandler(bus, userRepo, registry, router, coordinator, logger)

	// HTTP handlers
	userHandler := api.NewUserHandler(userRepo, registry, logger)
	watercoolerHandler := api.NewWatercoolerHandler(userRepo, teamRepo, issuer, tokenService, logger)
	debugHandler := api.NewDebugHandler(userRepo, issuer, tokenService, logger)
	if cfg.EnableDebugEndpoints {
		slog.Warn("debug endpoints enabled - DO NOT USE IN PRODUCTION")
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMin)

	deps := &server.Dependencies{
		DB:                 db,
		Tokens:             tokenService,
		UserHandler:        userHandler,
		WatercoolerHandler: watercoolerHandler,
		DebugHandler:       debugHandler,
		WSHandler:          wsHandler,
		RateLimiter:        rateLimiter,
		Logger:             logger,
	}

	srv := server.New(cfg, deps)

	// Graceful shutdown setup
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr, "env", cfg.Env)
		if err := listenAndServe(srv, cfg); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	// Give active connections 10 seconds to finish
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// listenAndServe starts TLS when a cert and key are configured and both
// files exist; anything less falls back to plain HTTP with a warning.
func listenAndServe(srv *http.Server, cfg *config.Config) error {
	if cfg.TLSConfigured() {
		if fileExists(cfg.TLSCertFile) && fileExists(cfg.TLSKeyFile) {
			slog.Info("serving TLS", "cert", cfg.TLSCertFile)
			return srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		}
		slog.Warn("TLS cert or key file not found, falling back to HTTP")
	}
	return srv.ListenAndServe()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
