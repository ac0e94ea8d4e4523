// Package api serves the diagnostics HTTP API of the agent.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nmslite/hwmon/internal/auth"
	"github.com/nmslite/hwmon/internal/exporter/prom"
	"github.com/nmslite/hwmon/internal/middleware"
	"github.com/nmslite/hwmon/internal/scheduler"
	"github.com/nmslite/hwmon/internal/stream"
)

// NewRouter creates and configures the API router. The Prometheus exposition,
// mounted when metrics is set, is public; host routes and the event stream
// require a bearer token. A nil events hub disables /api/v1/events.
func NewRouter(authService *auth.Service, sched *scheduler.Scheduler, events *stream.Hub, metrics bool, logger *slog.Logger) http.Handler {
	logger = logger.With("component", "api")
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	healthHandler := NewHealthHandler(sched)
	authHandler := NewAuthHandler(authService)
	hostHandler := NewHostHandler(sched)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if metrics {
		r.Method(http.MethodGet, "/metrics", prom.Handler(sched))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(authService))

			r.Route("/hosts", func(r chi.Router) {
				r.Get("/", hostHandler.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Use(middleware.HostID)
					r.Get("/", hostHandler.Get)
					r.Get("/monitors", hostHandler.Monitors)
					r.Get("/detection", hostHandler.Detection)
					r.Post("/cycle", hostHandler.Trigger)
				})
			})

			if events != nil {
				r.Method(http.MethodGet, "/events", events)
			}
		})
	})

	return r
}
