package handlers

import (
	"net/http"

	"github.com/llmops/provider-orchestrator/app"
)

// HealthCheck reports process liveness.
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":      "ok",
			"environment": deps.Config.Environment,
		})
	}
}

// ReadinessCheck reports whether the service can serve traffic. In
// memory-only mode there is no external dependency to wait on.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.DB != nil {
			if err := deps.DB.HealthCheck(r.Context()); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "not_ready",
					"reason": err.Error(),
				})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
