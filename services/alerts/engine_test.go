package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services/history"
	"github.com/llmops/provider-orchestrator/services/registry"
	"github.com/llmops/provider-orchestrator/utils"
)

type recordingNotifier struct {
	name   string
	alerts []models.Alert
}

func (n *recordingNotifier) Name() string { return n.name }
func (n *recordingNotifier) Notify(_ context.Context, a models.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

type fixture struct {
	registry *registry.Service
	store    *history.Store
	engine   *Engine
	notifier *recordingNotifier
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	reg := registry.NewService(nil, logger)
	store := history.NewStore(history.DefaultConfig(), nil, logger)

	f := &fixture{
		registry: reg,
		store:    store,
		notifier: &recordingNotifier{name: "test"},
		clock:    time.Now(),
	}
	f.engine = NewEngine(Config{DefaultCooldown: 15 * time.Minute, RecentLimit: 100}, store, reg, nil, nil, logger)
	f.engine.RegisterNotifier(f.notifier)
	f.engine.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) addProvider(t *testing.T, name string) *models.Provider {
	t.Helper()
	p := models.NewProvider(name, "https://"+name+".example.com", "", "model-"+name, 1)
	require.NoError(t, f.registry.Upsert(context.Background(), p))
	return p
}

func (f *fixture) recordSamples(p *models.Provider, n int, latency int64, cost float64, tokens int, failures int) {
	now := time.Now()
	for i := 0; i < n; i++ {
		f.store.Record(models.PerformanceSample{
			ProviderID: p.ID,
			Timestamp:  now.Add(-time.Duration(n-i) * time.Second),
			LatencyMS:  latency,
			Success:    i >= failures,
			Cost:       cost,
			TokensIn:   tokens / 2,
			TokensOut:  tokens - tokens/2,
		})
	}
}

func rule(name string, cond models.AlertConditionType, threshold float64, cooldownMinutes int, channels ...string) models.AlertRule {
	return models.AlertRule{
		ID:                   uuid.New(),
		Name:                 name,
		Enabled:              true,
		ConditionType:        cond,
		Threshold:            threshold,
		CooldownMinutes:      cooldownMinutes,
		Severity:             models.SeverityWarning,
		NotificationChannels: channels,
	}
}

func TestEngine_FiresOnBreachedCondition(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "flaky")
	f.recordSamples(p, 10, 100, 0, 0, 8) // 20% success rate

	require.NoError(t, f.engine.SetRules(context.Background(),
		[]models.AlertRule{rule("low success", models.ConditionSuccessRateBelow, 0.9, 15, "test")}))

	fired := f.engine.Evaluate(context.Background())
	require.Len(t, fired, 1)

	alert := fired[0]
	assert.Equal(t, p.ID, alert.ProviderID)
	assert.Equal(t, models.ConditionSuccessRateBelow, alert.Condition)
	assert.Equal(t, models.SeverityWarning, alert.Severity)
	assert.Contains(t, alert.Message, "flaky")

	require.Len(t, f.notifier.alerts, 1, "configured channel receives the alert")
}

func TestEngine_CooldownSuppressesRepeats(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "flaky")
	f.recordSamples(p, 10, 100, 0, 0, 10)

	require.NoError(t, f.engine.SetRules(context.Background(),
		[]models.AlertRule{rule("low success", models.ConditionSuccessRateBelow, 0.9, 30, "test")}))

	require.Len(t, f.engine.Evaluate(context.Background()), 1)

	t.Run("still cooling down", func(t *testing.T) {
		f.clock = f.clock.Add(10 * time.Minute)
		assert.Empty(t, f.engine.Evaluate(context.Background()),
			"condition still holds but pair is cooling down")
		f.clock = f.clock.Add(19 * time.Minute)
		assert.Empty(t, f.engine.Evaluate(context.Background()))
	})

	t.Run("re-fires after cooldown expiry", func(t *testing.T) {
		f.clock = f.clock.Add(2 * time.Minute)
		assert.Len(t, f.engine.Evaluate(context.Background()), 1)
	})
}

func TestEngine_CooldownIsPerProvider(t *testing.T) {
	f := newFixture(t)
	broken := f.addProvider(t, "broken")
	f.recordSamples(broken, 10, 100, 0, 0, 10)

	require.NoError(t, f.engine.SetRules(context.Background(),
		[]models.AlertRule{rule("low success", models.ConditionSuccessRateBelow, 0.9, 30, "test")}))
	require.Len(t, f.engine.Evaluate(context.Background()), 1)

	// A second provider starts failing while the first pair cools down.
	alsoBroken := f.addProvider(t, "also-broken")
	f.recordSamples(alsoBroken, 10, 100, 0, 0, 10)

	fired := f.engine.Evaluate(context.Background())
	require.Len(t, fired, 1)
	assert.Equal(t, alsoBroken.ID, fired[0].ProviderID)
}

func TestEngine_ConditionTypes(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "pricey")
	// Healthy but slow and expensive: 800ms, $0.05 per 1k tokens.
	f.recordSamples(p, 10, 800, 0.05, 1000, 0)

	t.Run("latency above", func(t *testing.T) {
		require.NoError(t, f.engine.SetRules(context.Background(),
			[]models.AlertRule{rule("slow", models.ConditionLatencyAbove, 500, 15, "test")}))
		assert.Len(t, f.engine.Evaluate(context.Background()), 1)
	})

	t.Run("cost per 1k above", func(t *testing.T) {
		require.NoError(t, f.engine.SetRules(context.Background(),
			[]models.AlertRule{rule("costly", models.ConditionCostPer1KAbove, 0.01, 15, "test")}))
		assert.Len(t, f.engine.Evaluate(context.Background()), 1)
	})

	t.Run("threshold not breached", func(t *testing.T) {
		require.NoError(t, f.engine.SetRules(context.Background(),
			[]models.AlertRule{rule("ok", models.ConditionSuccessRateBelow, 0.5, 15, "test")}))
		assert.Empty(t, f.engine.Evaluate(context.Background()))
	})
}

func TestEngine_SkipsDisabledRulesAndQuietProviders(t *testing.T) {
	f := newFixture(t)
	f.addProvider(t, "silent") // no samples, nothing to evaluate
	p := f.addProvider(t, "flaky")
	f.recordSamples(p, 10, 100, 0, 0, 10)

	disabled := rule("off", models.ConditionSuccessRateBelow, 0.9, 15, "test")
	disabled.Enabled = false
	require.NoError(t, f.engine.SetRules(context.Background(), []models.AlertRule{disabled}))

	assert.Empty(t, f.engine.Evaluate(context.Background()))
}

func TestEngine_SetRulesValidation(t *testing.T) {
	f := newFixture(t)

	bad := rule("bad", models.AlertConditionType("latency_below"), 10, 15)
	err := f.engine.SetRules(context.Background(), []models.AlertRule{bad})
	require.Error(t, err)
	assert.True(t, utils.IsValidationError(err))
	assert.Empty(t, f.engine.Rules(), "invalid rule set is rejected atomically")
}

func TestEngine_SetRulesKeepsCooldownState(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "flaky")
	f.recordSamples(p, 10, 100, 0, 0, 10)

	r := rule("low success", models.ConditionSuccessRateBelow, 0.9, 30, "test")
	require.NoError(t, f.engine.SetRules(context.Background(), []models.AlertRule{r}))
	require.Len(t, f.engine.Evaluate(context.Background()), 1)

	// Re-saving the identical rule must not reopen the fire window.
	require.NoError(t, f.engine.SetRules(context.Background(), []models.AlertRule{r}))
	assert.Empty(t, f.engine.Evaluate(context.Background()))
}

func TestEngine_RecentAlerts(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "flaky")
	f.recordSamples(p, 10, 100, 0, 0, 10)

	require.NoError(t, f.engine.SetRules(context.Background(),
		[]models.AlertRule{rule("low success", models.ConditionSuccessRateBelow, 0.9, 30, "test")}))
	require.Len(t, f.engine.Evaluate(context.Background()), 1)

	alerts, err := f.engine.RecentAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, p.ID, alerts[0].ProviderID)
}

func TestEngine_UnknownChannelIsLoggedNotFatal(t *testing.T) {
	f := newFixture(t)
	p := f.addProvider(t, "flaky")
	f.recordSamples(p, 10, 100, 0, 0, 10)

	require.NoError(t, f.engine.SetRules(context.Background(),
		[]models.AlertRule{rule("low success", models.ConditionSuccessRateBelow, 0.9, 15, "pager")}))

	fired := f.engine.Evaluate(context.Background())
	assert.Len(t, fired, 1, "a missing channel must not suppress the alert itself")
}
