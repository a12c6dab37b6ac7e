package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/llmops/provider-orchestrator/app"
	"github.com/llmops/provider-orchestrator/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	// CORS middleware, the dashboard runs on a separate origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", handlers.ListProvidersHandler(deps))
			r.Post("/", handlers.SaveProvidersHandler(deps))
			r.Get("/history", handlers.ProviderHistoryHandler(deps))
			r.Post("/speed-test", handlers.SpeedTestHandler(deps))
		})

		r.Route("/optimization", func(r chi.Router) {
			r.Get("/mode", handlers.GetModeHandler(deps))
			r.Post("/mode", handlers.SetModeHandler(deps))
			r.Post("/execute", handlers.ExecuteHandler(deps))
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", handlers.ListAlertsHandler(deps))
			r.Post("/check", handlers.CheckAlertsHandler(deps))
			r.Get("/rules", handlers.ListAlertRulesHandler(deps))
			r.Post("/rules", handlers.SaveAlertRulesHandler(deps))
		})

		r.Route("/export", func(r chi.Router) {
			r.Get("/stats", handlers.ExportStatsHandler(deps))
			r.Get("/csv", handlers.ExportCSVHandler(deps))
			r.Get("/pdf", handlers.ExportPDFHandler(deps))
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
