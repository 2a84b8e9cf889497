package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/sqlchat/internal/middleware"
	"github.com/capitalize-ai/sqlchat/pkg/logger"
)

// RouterConfig holds the cross-cutting settings of the router.
type RouterConfig struct {
	AuthEnabled       bool
	JWTSecret         string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Health *HealthHandler
	Chat   *ChatHandler
	Stream *StreamHandler
	Schema *SchemaHandler
	Auth   *AuthHandler
}

// NewRouter builds the API router.
func NewRouter(h Handlers, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health.Health)
		r.Post("/auth/login", h.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.AuthEnabled, cfg.JWTSecret))

			r.Get("/auth/me", h.Auth.Me)

			r.Route("/schema", func(r chi.Router) {
				r.Get("/", h.Schema.List)
				r.Get("/context/prompt", h.Schema.PromptContext)
				r.Get("/{table}", h.Schema.Table)
			})

			r.Get("/chat/stream/{streamID}", h.Stream.Stream)

			r.Group(func(r chi.Router) {
				if cfg.RateLimitRequests > 0 {
					r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
				}
				r.Post("/chat", h.Chat.Submit)
			})
		})
	})

	return r
}
