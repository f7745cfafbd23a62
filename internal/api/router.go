package api

import (
	"encoding/json"
	"net/http"

	"github.com/agentoven/psymarket/internal/api/handlers"
	"github.com/agentoven/psymarket/internal/api/middleware"
	"github.com/agentoven/psymarket/internal/config"
	"github.com/agentoven/psymarket/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(middleware.Metrics(m))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"Location", "X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAPIKeyAuth(cfg.Auth.APIKeys).Middleware)

	// Health & info
	r.Get("/health", healthHandler(h))
	r.Get("/version", versionHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Get("/", h.ListAnalyses)
			r.Post("/", h.StartAnalysis)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetAnalysis)
				r.Delete("/", h.CancelAnalysis)
				r.Get("/report", h.GetReport)
				r.Get("/report.md", h.GetReportMarkdown)
				r.Get("/report.pdf", h.GetReportPDF)
			})
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", h.SystemStatus)
			r.Post("/test", h.SystemTest)
		})
	})

	return r
}

// healthHandler answers 503 when the run store is unusable.
func healthHandler(h *handlers.Handlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := map[string]string{
			"status":  "healthy",
			"service": "psymarket",
		}
		if err := h.Store.Ping(r.Context()); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(body)
	}
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "psymarket",
		})
	}
}
