package handlers

import (
	"net/http"

	"github.com/llmops/provider-orchestrator/app"
	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services/alerts"
)

// ListAlertRulesHandler returns the current alert rule set.
func ListAlertRulesHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"rules": deps.AlertEng.Rules(),
		})
	}
}

// NotificationConfig carries delivery settings that accompany a rule save.
type NotificationConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// SaveAlertRulesRequest is the body of POST /v1/alerts/rules.
type SaveAlertRulesRequest struct {
	Rules              []models.AlertRule  `json:"rules"`
	NotificationConfig *NotificationConfig `json:"notification_config,omitempty"`
}

// SaveAlertRulesHandler replaces the whole alert rule set. Cooldown state
// for rules that survive the replacement is preserved.
func SaveAlertRulesHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveAlertRulesRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body: "+err.Error())
			return
		}

		if err := deps.AlertEng.SetRules(r.Context(), req.Rules); err != nil {
			respondServiceError(w, err)
			return
		}

		if req.NotificationConfig != nil && req.NotificationConfig.WebhookURL != "" {
			deps.AlertEng.RegisterNotifier(alerts.NewWebhookNotifier(
				req.NotificationConfig.WebhookURL, deps.Config.Alerts.WebhookTimeout, deps.Logger))
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"rules": deps.AlertEng.Rules(),
		})
	}
}

// ListAlertsHandler returns the newest fired alerts.
func ListAlertsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 50)

		alerts, err := deps.AlertEng.RecentAlerts(r.Context(), limit)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if alerts == nil {
			alerts = []models.Alert{}
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
	}
}

// CheckAlertsHandler runs an on-demand evaluation pass. It is the same
// state-machine evaluation the scheduler runs, just invoked explicitly, so
// cooldowns apply identically.
func CheckAlertsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fired := deps.AlertEng.Evaluate(r.Context())
		if fired == nil {
			fired = []models.Alert{}
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"new_alerts": fired})
	}
}
