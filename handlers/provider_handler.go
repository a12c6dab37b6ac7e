package handlers

import (
	"net/http"
	"strconv"

	"github.com/llmops/provider-orchestrator/app"
	"github.com/llmops/provider-orchestrator/models"
)

// ProviderView is a provider together with its derived health, the shape
// the dashboard's provider table renders.
type ProviderView struct {
	models.Provider
	Health models.HealthStatus `json:"health"`
}

// ListProvidersHandler returns all registered providers with health.
func ListProvidersHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers := deps.Registry.List()

		views := make([]ProviderView, 0, len(providers))
		for _, p := range providers {
			views = append(views, ProviderView{
				Provider: p,
				Health:   deps.History.RecentHealth(p.ID),
			})
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"providers": views})
	}
}

// SaveProvidersRequest is the body of POST /v1/providers.
type SaveProvidersRequest struct {
	Providers []models.Provider `json:"providers"`
}

// SaveProvidersHandler upserts a batch of provider configurations. The
// batch is applied in order; the first invalid entry aborts the request and
// earlier entries stay applied, matching per-provider upsert semantics.
func SaveProvidersHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveProvidersRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body: "+err.Error())
			return
		}
		if len(req.Providers) == 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "providers list is empty")
			return
		}

		for i := range req.Providers {
			if err := deps.Registry.Upsert(r.Context(), &req.Providers[i]); err != nil {
				respondServiceError(w, err)
				return
			}
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"providers": deps.Registry.List()})
	}
}

// ProviderHistoryHandler returns the newest recorded calls across all
// providers.
func ProviderHistoryHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 100)

		calls, err := deps.History.Recent(r.Context(), limit)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"calls": calls})
	}
}

// SpeedTestRequest is the body of POST /v1/providers/speed-test.
type SpeedTestRequest struct {
	Message string `json:"message"`
}

// Benchmark is one provider's speed-test result.
type Benchmark struct {
	Model        string  `json:"model"`
	AvgLatency   float64 `json:"avg_latency"`
	TotalCost    float64 `json:"total_cost"`
	SuccessRate  float64 `json:"success_rate"`
	LastResponse string  `json:"last_response"`
}

// SpeedTestHandler runs one synchronous probe round against every enabled
// provider and returns per-provider benchmarks. The probes record samples
// like any scheduled round, so a speed test also refreshes health.
func SpeedTestHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SpeedTestRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "malformed request body: "+err.Error())
			return
		}

		results := deps.Prober.ProbeAll(r.Context(), req.Message)
		if len(results) == 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "no enabled providers to test")
			return
		}

		snapshot := deps.History.Snapshot(0)

		anySuccess := false
		benchmarks := make(map[string]Benchmark, len(results))
		for _, res := range results {
			if res.Sample.Success {
				anySuccess = true
			}

			b := Benchmark{
				Model:      res.Provider.Model,
				AvgLatency: float64(res.Sample.LatencyMS),
			}
			if stats, ok := snapshot[res.Provider.ID]; ok {
				b.AvgLatency = stats.AvgLatencyMS
				b.TotalCost = stats.TotalCost
				b.SuccessRate = stats.SuccessRate
			}
			if res.Response != nil {
				b.LastResponse = res.Response.Content
			} else if res.Sample.Error != "" {
				b.LastResponse = res.Sample.Error
			}
			benchmarks[res.Provider.Name] = b
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":    anySuccess,
			"benchmarks": benchmarks,
		})
	}
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
