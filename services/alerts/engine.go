// Package alerts evaluates alert rules against the trailing performance
// window and fires notifications with a per-(rule, provider) cooldown.
// Evaluation runs on a schedule, after recorded samples, and on demand
// through the check endpoint; all three paths share one code path and one
// cooldown state.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/repositories"
	"github.com/llmops/provider-orchestrator/services"
	"github.com/llmops/provider-orchestrator/services/history"
	"github.com/llmops/provider-orchestrator/services/registry"
	"github.com/llmops/provider-orchestrator/utils"
)

// Config holds alert engine tuning parameters.
type Config struct {
	// DefaultCooldown applies to rules with cooldown_minutes = 0.
	DefaultCooldown time.Duration
	// RecentLimit bounds the in-memory fired-alert buffer.
	RecentLimit int
}

// cooldownKey scopes cooldown state to one rule against one provider, so a
// rule firing for provider A does not suppress it for provider B.
type cooldownKey struct {
	RuleID     uuid.UUID
	ProviderID uuid.UUID
}

// Engine owns alert rules, evaluation, and cooldown state.
type Engine struct {
	cfg      Config
	logger   *zap.Logger
	store    *history.Store
	registry *registry.Service

	ruleRepo  repositories.AlertRuleRepository // nil in memory-only mode
	alertRepo repositories.AlertRepository     // nil in memory-only mode

	notifiers map[string]Notifier

	mu        sync.Mutex
	rules     []models.AlertRule
	lastFired map[cooldownKey]time.Time
	recent    []models.Alert

	kickCh chan struct{}
	now    func() time.Time
}

// NewEngine creates an alert engine. Repositories may be nil.
func NewEngine(cfg Config, store *history.Store, reg *registry.Service, ruleRepo repositories.AlertRuleRepository, alertRepo repositories.AlertRepository, logger *zap.Logger) *Engine {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 500
	}
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		registry:  reg,
		ruleRepo:  ruleRepo,
		alertRepo: alertRepo,
		notifiers: make(map[string]Notifier),
		lastFired: make(map[cooldownKey]time.Time),
		kickCh:    make(chan struct{}, 1),
		now:       time.Now,
	}
}

// RegisterNotifier adds a delivery channel under its own name.
func (e *Engine) RegisterNotifier(n Notifier) {
	e.notifiers[n.Name()] = n
}

// Load populates rules from durable storage.
func (e *Engine) Load(ctx context.Context) error {
	if e.ruleRepo == nil {
		return nil
	}

	rules, err := e.ruleRepo.List(ctx)
	if err != nil {
		return services.WrapStorage("failed to load alert rules", err)
	}

	e.mu.Lock()
	e.rules = rules
	e.mu.Unlock()

	e.logger.Info("alert rules loaded", zap.Int("count", len(rules)))
	return nil
}

// Rules returns the current rule set.
func (e *Engine) Rules() []models.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.AlertRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// SetRules validates and replaces the whole rule set. Cooldown state for
// rules that survive the replacement is kept, so re-saving an unchanged
// rule set does not reopen fire windows.
func (e *Engine) SetRules(ctx context.Context, rules []models.AlertRule) error {
	now := e.now()
	for i := range rules {
		if rules[i].ID == uuid.Nil {
			rules[i].ID = uuid.New()
		}
		if rules[i].CreatedAt.IsZero() {
			rules[i].CreatedAt = now
		}
		rules[i].UpdatedAt = now
		if rules[i].Severity == "" {
			rules[i].Severity = models.SeverityWarning
		}
		if err := utils.ValidateStruct(&rules[i]); err != nil {
			return err
		}
	}

	if e.ruleRepo != nil {
		if err := e.ruleRepo.ReplaceAll(ctx, rules); err != nil {
			return services.WrapStorage("failed to persist alert rules", err)
		}
	}

	e.mu.Lock()
	e.rules = rules
	keep := make(map[uuid.UUID]bool, len(rules))
	for _, r := range rules {
		keep[r.ID] = true
	}
	for key := range e.lastFired {
		if !keep[key.RuleID] {
			delete(e.lastFired, key)
		}
	}
	e.mu.Unlock()

	e.logger.Info("alert rules replaced", zap.Int("count", len(rules)))
	return nil
}

// Kick requests an evaluation pass without blocking. Used by the history
// store after each recorded sample; coalesces when one is already pending.
func (e *Engine) Kick() {
	select {
	case e.kickCh <- struct{}{}:
	default:
	}
}

// Run serves kicked evaluations until the context is cancelled. Scheduled
// evaluation is driven externally by cron through Evaluate.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.kickCh:
			e.Evaluate(ctx)
		}
	}
}

// Evaluate checks every enabled rule against every enabled provider's
// trailing window and returns the alerts fired in this pass. Pairs inside
// their cooldown stay silent even when the condition still holds.
func (e *Engine) Evaluate(ctx context.Context) []models.Alert {
	providers := e.registry.ListEnabled()
	if len(providers) == 0 {
		return nil
	}
	snapshot := e.store.Snapshot(0)
	now := e.now()

	e.mu.Lock()
	rules := make([]models.AlertRule, len(e.rules))
	copy(rules, e.rules)
	e.mu.Unlock()

	var fired []models.Alert
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		for _, provider := range providers {
			stats, ok := snapshot[provider.ID]
			if !ok || stats.SampleCount == 0 {
				continue
			}

			breached, observed := evaluateCondition(rule, stats)
			if !breached {
				continue
			}

			key := cooldownKey{RuleID: rule.ID, ProviderID: provider.ID}
			cooldown := rule.Cooldown()
			if cooldown <= 0 {
				cooldown = e.cfg.DefaultCooldown
			}

			e.mu.Lock()
			last, firedBefore := e.lastFired[key]
			if firedBefore && now.Sub(last) < cooldown {
				e.mu.Unlock()
				continue
			}
			e.lastFired[key] = now
			e.mu.Unlock()

			alert := models.Alert{
				ID:         uuid.New(),
				RuleID:     rule.ID,
				ProviderID: provider.ID,
				Condition:  rule.ConditionType,
				Severity:   rule.Severity,
				Timestamp:  now,
				Message: fmt.Sprintf("%s: provider %q %s (observed %.4f, threshold %.4f)",
					rule.Name, provider.Name, describeCondition(rule.ConditionType), observed, rule.Threshold),
			}

			e.record(ctx, alert)
			e.deliver(ctx, rule, alert)
			fired = append(fired, alert)
		}
	}

	if len(fired) > 0 {
		e.logger.Info("alert evaluation fired alerts", zap.Int("count", len(fired)))
	}
	return fired
}

// evaluateCondition reports whether the rule's condition is breached and
// the observed value it was compared against.
func evaluateCondition(rule models.AlertRule, stats history.ProviderStats) (bool, float64) {
	switch rule.ConditionType {
	case models.ConditionSuccessRateBelow:
		return stats.SuccessRate < rule.Threshold, stats.SuccessRate
	case models.ConditionLatencyAbove:
		return stats.AvgLatencyMS > rule.Threshold, stats.AvgLatencyMS
	case models.ConditionCostPer1KAbove:
		cost := stats.CostPer1KTokens()
		return cost > rule.Threshold, cost
	}
	return false, 0
}

func describeCondition(c models.AlertConditionType) string {
	switch c {
	case models.ConditionSuccessRateBelow:
		return "success rate below threshold"
	case models.ConditionLatencyAbove:
		return "average latency above threshold"
	case models.ConditionCostPer1KAbove:
		return "cost per 1k tokens above threshold"
	}
	return string(c)
}

// record stores a fired alert in the recent buffer and durable storage.
func (e *Engine) record(ctx context.Context, alert models.Alert) {
	e.mu.Lock()
	e.recent = append(e.recent, alert)
	if len(e.recent) > e.cfg.RecentLimit {
		e.recent = e.recent[len(e.recent)-e.cfg.RecentLimit:]
	}
	e.mu.Unlock()

	if e.alertRepo != nil {
		if err := e.alertRepo.Insert(ctx, &alert); err != nil {
			e.logger.Error("failed to persist alert",
				zap.String("alert_id", alert.ID.String()),
				zap.Error(err))
		}
	}
}

// deliver fans the alert out to the rule's channels. Rules with no
// channels fall back to the log channel.
func (e *Engine) deliver(ctx context.Context, rule models.AlertRule, alert models.Alert) {
	channels := rule.NotificationChannels
	if len(channels) == 0 {
		channels = []string{"log"}
	}

	for _, name := range channels {
		n, ok := e.notifiers[name]
		if !ok {
			e.logger.Warn("unknown notification channel",
				zap.String("channel", name),
				zap.String("rule", rule.Name))
			continue
		}
		if err := n.Notify(ctx, alert); err != nil {
			e.logger.Error("alert notification failed",
				zap.String("channel", name),
				zap.String("alert_id", alert.ID.String()),
				zap.Error(err))
		}
	}
}

// RecentAlerts returns the newest fired alerts, descending by timestamp.
func (e *Engine) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = e.cfg.RecentLimit
	}

	if e.alertRepo != nil {
		return e.alertRepo.ListRecent(ctx, limit)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Alert, 0, limit)
	for i := len(e.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recent[i])
	}
	return out, nil
}
