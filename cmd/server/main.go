package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/api"
	"github.com/eldtechnologies/peerlink/internal/api/middleware"
	"github.com/eldtechnologies/peerlink/internal/call"
	"github.com/eldtechnologies/peerlink/internal/chat"
	"github.com/eldtechnologies/peerlink/internal/config"
	"github.com/eldtechnologies/peerlink/internal/crypto"
	"github.com/eldtechnologies/peerlink/internal/handlers"
	"github.com/eldtechnologies/peerlink/internal/presence"
	"github.com/eldtechnologies/peerlink/internal/store"
	"github.com/eldtechnologies/peerlink/internal/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the data store: PostgreSQL when configured, SQLite
	// otherwise.
	var dataStore store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		dataStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		dataStore = sqliteStore
		logger.Info().Msg("using SQLite store")
	}
	defer dataStore.Close()

	// Initialize Redis (optional)
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	cipher, err := crypto.NewMessageCipher(cfg.MessageSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("message cipher init failed")
	}

	// Realtime core
	registry := presence.NewRegistry(logger)
	chatSvc := chat.NewService(dataStore, registry, cipher, cfg.DedupWindow, logger)
	rooms := call.NewRooms(logger)
	calls := call.NewCoordinator(registry, cfg.CallRingTimeout, logger)
	gateway := ws.NewGateway([]byte(cfg.TokenSecret), registry, chatSvc, calls, rooms, dataStore, redisStore, logger)

	// HTTP surface
	h := handlers.NewHandler(dataStore, redisStore, chatSvc, registry)
	auth := middleware.NewAuthMiddleware([]byte(cfg.TokenSecret))
	router := api.NewRouter(logger, h, auth, redisStore, gateway, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would sever long-lived WebSocket
		// connections. Per-write deadlines live in the gateway.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting peerlink server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
