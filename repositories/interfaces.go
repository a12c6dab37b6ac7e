// Package repositories declares the persistence contracts of the core.
// Implementations live in subpackages (postgres). Every service that needs
// durability accepts one of these interfaces and tolerates a nil value,
// in which case state is held in memory only.
package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/llmops/provider-orchestrator/models"
)

// ProviderRepository persists provider configuration.
type ProviderRepository interface {
	// Upsert inserts the provider or updates it in place when the ID exists.
	Upsert(ctx context.Context, provider *models.Provider) error

	// List returns all providers, enabled or not, ordered by priority then id.
	List(ctx context.Context) ([]models.Provider, error)

	// SetEnabled flips the enabled flag without touching other fields.
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
}

// SampleRepository persists performance samples. Samples are append-only;
// there is no update path.
type SampleRepository interface {
	Insert(ctx context.Context, sample *models.PerformanceSample) error

	// ListRange returns samples for one provider within [from, to), ascending
	// by timestamp.
	ListRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]models.PerformanceSample, error)

	// ListRecent returns the newest samples across all providers, descending
	// by timestamp.
	ListRecent(ctx context.Context, limit int) ([]models.PerformanceSample, error)

	// DeleteOlderThan prunes samples outside the retention window and
	// reports how many rows were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertRuleRepository persists the alert rule set.
type AlertRuleRepository interface {
	// ReplaceAll swaps the stored rule set for the given one atomically.
	ReplaceAll(ctx context.Context, rules []models.AlertRule) error

	List(ctx context.Context) ([]models.AlertRule, error)
}

// AlertRepository persists fired alerts. Alerts are immutable events.
type AlertRepository interface {
	Insert(ctx context.Context, alert *models.Alert) error

	// ListRecent returns the newest alerts, descending by timestamp.
	ListRecent(ctx context.Context, limit int) ([]models.Alert, error)
}
