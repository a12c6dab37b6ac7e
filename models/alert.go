package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertConditionType identifies what an alert rule measures.
type AlertConditionType string

const (
	ConditionSuccessRateBelow AlertConditionType = "success_rate_below"
	ConditionLatencyAbove     AlertConditionType = "latency_above"
	ConditionCostPer1KAbove   AlertConditionType = "cost_per_1k_above"
)

// AlertSeverity indicates how urgent a fired alert is.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertRule is a configurable threshold rule evaluated against provider
// aggregates. Rules are mutated via the configuration API and never
// auto-deleted by the engine.
type AlertRule struct {
	ID                   uuid.UUID          `json:"id" db:"id"`
	Name                 string             `json:"name" db:"name" validate:"required,max=255"`
	Enabled              bool               `json:"enabled" db:"enabled"`
	ConditionType        AlertConditionType `json:"condition_type" db:"condition_type" validate:"required,oneof=success_rate_below latency_above cost_per_1k_above"`
	Threshold            float64            `json:"threshold" db:"threshold"`
	CooldownMinutes      int                `json:"cooldown_minutes" db:"cooldown_minutes" validate:"gte=0"`
	Severity             AlertSeverity      `json:"severity" db:"severity" validate:"omitempty,oneof=warning critical"`
	NotificationChannels []string           `json:"notification_channels" db:"notification_channels"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the AlertRule model
func (AlertRule) TableName() string {
	return "alert_rules"
}

// Cooldown returns the rule cooldown as a duration.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Alert is an immutable event created when a rule fires outside its
// cooldown window.
type Alert struct {
	ID         uuid.UUID          `json:"id" db:"id"`
	RuleID     uuid.UUID          `json:"rule_id" db:"rule_id"`
	ProviderID uuid.UUID          `json:"provider_id" db:"provider_id"`
	Condition  AlertConditionType `json:"condition" db:"condition"`
	Message    string             `json:"message" db:"message"`
	Severity   AlertSeverity      `json:"severity" db:"severity"`
	Timestamp  time.Time          `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the Alert model
func (Alert) TableName() string {
	return "alerts"
}
