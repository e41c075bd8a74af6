// Package api provides HTTP router setup.
package api

import (
	"net/http"

	"github.com/antiplagiat/textcheck/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with all routes configured.
// gatherer backs /metrics; nil leaves the endpoint out.
func NewRouter(cfg *config.Config, handler *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", handler.HealthCheck)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.With(RateLimitMiddleware(cfg.RateLimits.ChecksPerMinute)).Post("/checks", handler.CreateCheck)

		r.Route("/checks/{id}", func(r chi.Router) {
			r.Get("/report", handler.GetReport)
			r.Get("/report.html", handler.GetReportHTML)
			r.Get("/report.pdf", handler.GetReportPDF)
			r.Delete("/", handler.DeleteCheck)
		})

		r.Get("/history", handler.ListHistory)
		r.Delete("/history", handler.ClearHistory)

		r.Get("/sources", handler.ListSources)
		r.Get("/upstream/health", handler.UpstreamHealth)
	})

	return r
}
