package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/api/middleware"
	"github.com/eldtechnologies/peerlink/internal/handlers"
	"github.com/eldtechnologies/peerlink/internal/store"
)

// NewRouter creates and configures the HTTP router. gateway is the
// WebSocket endpoint handler; everything else is the synchronous REST
// surface.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, auth *middleware.AuthMiddleware, redis *store.RedisStore, gateway http.Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redis, logger)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// The persistent connection: rate limited by IP, authenticated by
	// the gateway itself during the handshake.
	r.With(limiter.Middleware).Handle("/ws", gateway)

	// Authenticated REST routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(limiter.Middleware)

		r.Post("/messages", h.SendMessage)
		r.Post("/messages/{id}/read", h.MarkRead)
		r.Get("/conversations/{userId}", h.Conversation)
		r.Get("/presence", h.Presence)
	})

	return r
}
