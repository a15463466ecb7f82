package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"secret.link/config"
)

func SetupRouter(s Service, cfg *config.Config, log *slog.Logger) *chi.Mux {
	h := NewHandler(s, cfg, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(CORS(CORSConfig{
		AllowedOrigins: []string{strings.TrimRight(cfg.Server.BaseURL, "/")},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader, cfg.Server.OwnerHeader},
		MaxAge:         86400,
	}))

	// Health
	r.Get("/health", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(JSONOnly)
		r.Use(Owner(cfg.Server.OwnerHeader))

		r.Route("/secrets", func(r chi.Router) {
			r.Post("/", h.CreateSecret)
			r.Get("/", h.ListOwned)
			r.Get("/{slug}", h.GetStatus)
			r.Delete("/{slug}", h.DeleteSecret)
			r.Post("/{slug}/verify", h.VerifyPassword)
			r.Post("/{slug}/consume", h.Consume)
		})
	})

	return r
}
