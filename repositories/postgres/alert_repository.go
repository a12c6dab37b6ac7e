package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/repositories"
)

// AlertRuleRepository implements the repositories.AlertRuleRepository interface
type AlertRuleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAlertRuleRepository creates a new alert rule repository
func NewAlertRuleRepository(db *DB, logger *zap.Logger) repositories.AlertRuleRepository {
	return &AlertRuleRepository{
		db:     db,
		logger: logger,
	}
}

// ReplaceAll swaps the stored rule set for the given one atomically
func (r *AlertRuleRepository) ReplaceAll(ctx context.Context, rules []models.AlertRule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_rules`); err != nil {
		return fmt.Errorf("failed to clear alert rules: %w", err)
	}

	query := `
		INSERT INTO alert_rules (id, name, enabled, condition_type, threshold, cooldown_minutes, severity, notification_channels, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for i := range rules {
		rule := &rules[i]
		_, err := tx.ExecContext(ctx, query,
			rule.ID,
			rule.Name,
			rule.Enabled,
			rule.ConditionType,
			rule.Threshold,
			rule.CooldownMinutes,
			rule.Severity,
			pq.Array(rule.NotificationChannels),
			rule.CreatedAt,
			rule.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert alert rule %s: %w", rule.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert rules: %w", err)
	}

	r.logger.Debug("alert rules replaced", zap.Int("count", len(rules)))
	return nil
}

// List returns all alert rules
func (r *AlertRuleRepository) List(ctx context.Context) ([]models.AlertRule, error) {
	query := `
		SELECT id, name, enabled, condition_type, threshold, cooldown_minutes, severity, notification_channels, created_at, updated_at
		FROM alert_rules
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()

	var rules []models.AlertRule
	for rows.Next() {
		var rule models.AlertRule
		err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Enabled,
			&rule.ConditionType,
			&rule.Threshold,
			&rule.CooldownMinutes,
			&rule.Severity,
			pq.Array(&rule.NotificationChannels),
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rule rows: %w", err)
	}

	return rules, nil
}

// AlertRepository implements the repositories.AlertRepository interface
type AlertRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *DB, logger *zap.Logger) repositories.AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a fired alert
func (r *AlertRepository) Insert(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (id, rule_id, provider_id, condition, message, severity, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.RuleID,
		alert.ProviderID,
		alert.Condition,
		alert.Message,
		alert.Severity,
		alert.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// ListRecent returns the newest alerts
func (r *AlertRepository) ListRecent(ctx context.Context, limit int) ([]models.Alert, error) {
	query := `
		SELECT id, rule_id, provider_id, condition, message, severity, timestamp
		FROM alerts
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		err := rows.Scan(
			&a.ID,
			&a.RuleID,
			&a.ProviderID,
			&a.Condition,
			&a.Message,
			&a.Severity,
			&a.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}

	return alerts, nil
}
