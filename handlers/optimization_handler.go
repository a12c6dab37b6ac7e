package handlers

import (
	"net/http"

	"github.com/llmops/provider-orchestrator/app"
	"github.com/llmops/provider-orchestrator/services"
	"github.com/llmops/provider-orchestrator/services/selector"
	"github.com/llmops/provider-orchestrator/services/upstream"
)

// GetModeHandler returns the current default optimization mode and the
// ranking it would produce right now, so the UI's mode badge is
// reproducible from the same data the backend used.
func GetModeHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := deps.Selector.Mode()

		result, err := deps.Selector.Select(mode)
		if err != nil {
			if services.IsConfigurationError(err) {
				respondJSON(w, http.StatusOK, map[string]interface{}{
					"mode":              mode,
					"selected_provider": nil,
				})
				return
			}
			respondServiceError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"mode":              mode,
			"selected_provider": result.Candidates[0].Provider.Name,
			"candidates":        result.Candidates,
			"degraded":          result.Degraded,
		})
	}
}

// SetModeRequest is the body of POST /v1/optimization/mode.
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// SetModeHandler changes the default optimization mode and returns the
// provider the new mode selects.
func SetModeHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetModeRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body: "+err.Error())
			return
		}

		mode, err := selector.ParseMode(req.Mode)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		deps.Selector.SetMode(mode)

		var selected interface{}
		degraded := false
		if result, err := deps.Selector.Select(mode); err == nil && len(result.Candidates) > 0 {
			selected = result.Candidates[0].Provider.Name
			degraded = result.Degraded
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"mode":              mode,
			"selected_provider": selected,
			"degraded":          degraded,
		})
	}
}

// ExecuteRequest is the body of POST /v1/optimization/execute.
type ExecuteRequest struct {
	Message   string `json:"message"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// ExecuteHandler routes one logical call through the failover executor.
// An omitted mode uses the default; an exhausted candidate list maps to a
// bad gateway with the per-provider failure reasons.
func ExecuteHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExecuteRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body: "+err.Error())
			return
		}
		if req.Message == "" {
			respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
			return
		}

		mode := selector.Mode(req.Mode)
		if req.Mode != "" {
			var err error
			if mode, err = selector.ParseMode(req.Mode); err != nil {
				respondServiceError(w, err)
				return
			}
		}

		outcome, err := deps.Executor.Execute(r.Context(), mode, upstream.Request{
			Message:   req.Message,
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			respondServiceError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"response":      outcome.Response,
			"provider_used": outcome.Provider.Name,
			"attempts":      outcome.Attempts,
			"mode":          outcome.Mode,
			"degraded":      outcome.Degraded,
		})
	}
}
