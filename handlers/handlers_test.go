package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/app"
	"github.com/llmops/provider-orchestrator/config"
	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services/alerts"
	"github.com/llmops/provider-orchestrator/services/export"
	"github.com/llmops/provider-orchestrator/services/failover"
	"github.com/llmops/provider-orchestrator/services/history"
	"github.com/llmops/provider-orchestrator/services/prober"
	"github.com/llmops/provider-orchestrator/services/registry"
	"github.com/llmops/provider-orchestrator/services/selector"
	"github.com/llmops/provider-orchestrator/services/upstream"
)

// stubCaller fails configured provider names and succeeds otherwise.
type stubCaller struct {
	failing map[string]bool
}

func (c *stubCaller) Call(ctx context.Context, provider models.Provider, req upstream.Request) (*upstream.Response, error) {
	if c.failing[provider.Name] {
		return nil, errors.New("connection refused")
	}
	return &upstream.Response{Content: "ok from " + provider.Name, TokensIn: 5, TokensOut: 10, Cost: 0.001}, nil
}

type fixture struct {
	deps   *app.Dependencies
	caller *stubCaller
}

// newFixture wires a memory-only dependency graph, the same shape the app
// builds without a database.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	caller := &stubCaller{failing: make(map[string]bool)}

	reg := registry.NewService(nil, logger)
	store := history.NewStore(history.DefaultConfig(), nil, logger)
	sel := selector.New(reg, store, selector.ModeBalanced, logger)

	deps := &app.Dependencies{
		Config:   &config.Config{Environment: "test"},
		Logger:   logger,
		Registry: reg,
		History:  store,
		Selector: sel,
		Prober: prober.New(prober.Config{
			Interval: time.Minute,
			Timeout:  time.Second,
			Message:  "ping",
		}, reg, store, caller, logger),
		Executor: failover.NewExecutor(failover.Config{AttemptTimeout: time.Second}, sel, store, caller, logger),
		AlertEng: alerts.NewEngine(alerts.Config{DefaultCooldown: 15 * time.Minute, RecentLimit: 100}, store, reg, nil, nil, logger),
		Export:   export.NewService(export.Config{MaxDays: 90}, reg, store, logger),
	}
	deps.AlertEng.RegisterNotifier(alerts.NewLogNotifier(logger))
	return &fixture{deps: deps, caller: caller}
}

func (f *fixture) addProvider(t *testing.T, name string, priority int) *models.Provider {
	t.Helper()
	p := models.NewProvider(name, "https://"+name+".example.com", "", "model-"+name, priority)
	require.NoError(t, f.deps.Registry.Upsert(context.Background(), p))
	return p
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestProviderHandlers(t *testing.T) {
	f := newFixture(t)

	t.Run("list starts empty", func(t *testing.T) {
		w := doJSON(t, ListProvidersHandler(f.deps), http.MethodGet, "/v1/providers", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody(t, w)["providers"])
	})

	t.Run("save then list", func(t *testing.T) {
		body := SaveProvidersRequest{Providers: []models.Provider{
			{Name: "alpha", Endpoint: "https://alpha.example.com", Model: "model-a", Priority: 1, Enabled: true},
		}}
		w := doJSON(t, SaveProvidersHandler(f.deps), http.MethodPost, "/v1/providers", body)
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, ListProvidersHandler(f.deps), http.MethodGet, "/v1/providers", nil)
		providers := decodeBody(t, w)["providers"].([]interface{})
		require.Len(t, providers, 1)

		view := providers[0].(map[string]interface{})
		assert.Equal(t, "alpha", view["name"])
		health := view["health"].(map[string]interface{})
		assert.Equal(t, "unknown", health["state"])
	})

	t.Run("invalid provider is rejected", func(t *testing.T) {
		body := SaveProvidersRequest{Providers: []models.Provider{{Name: "", Endpoint: "nope", Model: ""}}}
		w := doJSON(t, SaveProvidersHandler(f.deps), http.MethodPost, "/v1/providers", body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_failed", decodeBody(t, w)["error"])
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		w := doJSON(t, SaveProvidersHandler(f.deps), http.MethodPost, "/v1/providers", SaveProvidersRequest{})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestProviderHistoryHandler(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "alpha", 1)

	for i := 0; i < 5; i++ {
		f.deps.History.Record(models.PerformanceSample{
			ProviderID: p.ID,
			Timestamp:  time.Now().Add(-time.Duration(i) * time.Second),
			LatencyMS:  100,
			Success:    true,
		})
	}

	w := doJSON(t, ProviderHistoryHandler(f.deps), http.MethodGet, "/v1/providers/history?limit=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["calls"], 3)
}

func TestSpeedTestHandler(t *testing.T) {
	f := newFixture(t)
	f.addProvider(t, "alpha", 1)
	f.addProvider(t, "broken", 2)
	f.caller.failing["broken"] = true

	w := doJSON(t, SpeedTestHandler(f.deps), http.MethodPost, "/v1/providers/speed-test", SpeedTestRequest{Message: "benchmark"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])

	benchmarks := body["benchmarks"].(map[string]interface{})
	require.Len(t, benchmarks, 2)

	alpha := benchmarks["alpha"].(map[string]interface{})
	assert.Equal(t, "model-alpha", alpha["model"])
	assert.Equal(t, "ok from alpha", alpha["last_response"])
	assert.InDelta(t, 1.0, alpha["success_rate"].(float64), 0.001)

	broken := benchmarks["broken"].(map[string]interface{})
	assert.Zero(t, broken["success_rate"].(float64))
}

func TestOptimizationModeHandlers(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "alpha", 1)
	f.deps.History.Record(models.PerformanceSample{
		ProviderID: p.ID, Timestamp: time.Now(), LatencyMS: 100, Success: true,
	})

	t.Run("get reports default mode", func(t *testing.T) {
		w := doJSON(t, GetModeHandler(f.deps), http.MethodGet, "/v1/optimization/mode", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "balanced", body["mode"])
		assert.Equal(t, "alpha", body["selected_provider"])
	})

	t.Run("set switches mode", func(t *testing.T) {
		w := doJSON(t, SetModeHandler(f.deps), http.MethodPost, "/v1/optimization/mode", SetModeRequest{Mode: "fastest"})
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "fastest", body["mode"])
		assert.Equal(t, selector.ModeFastest, f.deps.Selector.Mode())
	})

	t.Run("unknown mode is rejected", func(t *testing.T) {
		w := doJSON(t, SetModeHandler(f.deps), http.MethodPost, "/v1/optimization/mode", SetModeRequest{Mode: "quickest"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, selector.ModeFastest, f.deps.Selector.Mode(), "mode unchanged after rejection")
	})
}

func TestExecuteHandler(t *testing.T) {
	f := newFixture(t)

	t.Run("no providers is a 400", func(t *testing.T) {
		w := doJSON(t, ExecuteHandler(f.deps), http.MethodPost, "/v1/optimization/execute", ExecuteRequest{Message: "hi"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	f.addProvider(t, "primary", 1)
	f.addProvider(t, "backup", 2)

	t.Run("failover to backup", func(t *testing.T) {
		f.caller.failing["primary"] = true

		w := doJSON(t, ExecuteHandler(f.deps), http.MethodPost, "/v1/optimization/execute", ExecuteRequest{Message: "hi"})
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "backup", body["provider_used"])
		assert.Equal(t, float64(2), body["attempts"])
	})

	t.Run("all failing is a 502", func(t *testing.T) {
		f.caller.failing["primary"] = true
		f.caller.failing["backup"] = true

		w := doJSON(t, ExecuteHandler(f.deps), http.MethodPost, "/v1/optimization/execute", ExecuteRequest{Message: "hi"})
		require.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "upstream_failed", decodeBody(t, w)["error"])
	})

	t.Run("missing message is a 400", func(t *testing.T) {
		w := doJSON(t, ExecuteHandler(f.deps), http.MethodPost, "/v1/optimization/execute", ExecuteRequest{})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAlertHandlers(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "flaky", 1)
	for i := 0; i < 10; i++ {
		f.deps.History.Record(models.PerformanceSample{
			ProviderID: p.ID,
			Timestamp:  time.Now().Add(-time.Duration(i) * time.Second),
			LatencyMS:  100,
			Success:    false,
		})
	}

	t.Run("save rules", func(t *testing.T) {
		body := SaveAlertRulesRequest{Rules: []models.AlertRule{{
			Name:          "low success",
			Enabled:       true,
			ConditionType: models.ConditionSuccessRateBelow,
			Threshold:     0.9,
		}}}
		w := doJSON(t, SaveAlertRulesHandler(f.deps), http.MethodPost, "/v1/alerts/rules", body)
		require.Equal(t, http.StatusOK, w.Code)

		rules := decodeBody(t, w)["rules"].([]interface{})
		require.Len(t, rules, 1)
		rule := rules[0].(map[string]interface{})
		assert.NotEmpty(t, rule["id"], "server assigns rule ids")
		assert.Equal(t, "warning", rule["severity"], "severity defaults to warning")
	})

	t.Run("save rules with notification config", func(t *testing.T) {
		body := SaveAlertRulesRequest{
			Rules: []models.AlertRule{{
				Name:          "low success",
				Enabled:       true,
				ConditionType: models.ConditionSuccessRateBelow,
				Threshold:     0.9,
			}},
			NotificationConfig: &NotificationConfig{WebhookURL: "https://hooks.example.com/alerts"},
		}
		w := doJSON(t, SaveAlertRulesHandler(f.deps), http.MethodPost, "/v1/alerts/rules", body)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("check fires and lists", func(t *testing.T) {
		w := doJSON(t, CheckAlertsHandler(f.deps), http.MethodPost, "/v1/alerts/check", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, decodeBody(t, w)["new_alerts"], 1)

		w = doJSON(t, ListAlertsHandler(f.deps), http.MethodGet, "/v1/alerts?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeBody(t, w)["alerts"], 1)
	})

	t.Run("repeated check respects cooldown", func(t *testing.T) {
		w := doJSON(t, CheckAlertsHandler(f.deps), http.MethodPost, "/v1/alerts/check", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody(t, w)["new_alerts"])
	})

	t.Run("invalid rule is rejected", func(t *testing.T) {
		body := SaveAlertRulesRequest{Rules: []models.AlertRule{{Name: "", ConditionType: "bogus"}}}
		w := doJSON(t, SaveAlertRulesHandler(f.deps), http.MethodPost, "/v1/alerts/rules", body)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestExportHandlers(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "alpha", 1)
	f.deps.History.Record(models.PerformanceSample{
		ProviderID: p.ID, Timestamp: time.Now(), LatencyMS: 100, Success: true, Cost: 0.01, TokensIn: 500, TokensOut: 500,
	})

	t.Run("stats json", func(t *testing.T) {
		w := doJSON(t, ExportStatsHandler(f.deps), http.MethodGet, "/v1/export/stats?days=7", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, float64(7), body["days"])
		assert.Len(t, body["providers"], 1)
	})

	t.Run("csv attachment", func(t *testing.T) {
		w := doJSON(t, ExportCSVHandler(f.deps), http.MethodGet, "/v1/export/csv?days=7", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
		assert.Contains(t, w.Body.String(), "provider,model,bucket_start")
	})

	t.Run("pdf attachment", func(t *testing.T) {
		w := doJSON(t, ExportPDFHandler(f.deps), http.MethodGet, "/v1/export/pdf?days=7", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
	})
}

func TestHealthHandlers(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, HealthCheck(f.deps), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])

	w = doJSON(t, ReadinessCheck(f.deps), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready", decodeBody(t, w)["status"], "memory-only mode is always ready")
}
