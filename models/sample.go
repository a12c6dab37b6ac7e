package models

import (
	"time"

	"github.com/google/uuid"
)

// PerformanceSample is an immutable record of one upstream call outcome.
// Samples are written once by the health prober or the failover executor
// and never mutated afterwards.
type PerformanceSample struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ProviderID uuid.UUID `json:"provider_id" db:"provider_id"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	LatencyMS  int64     `json:"latency_ms" db:"latency_ms"`
	Success    bool      `json:"success" db:"success"`
	Cost       float64   `json:"cost" db:"cost"`
	TokensIn   int       `json:"tokens_in" db:"tokens_in"`
	TokensOut  int       `json:"tokens_out" db:"tokens_out"`
	Error      string    `json:"error,omitempty" db:"error_message"` // failure reason, empty on success
}

// TableName returns the table name for the PerformanceSample model
func (PerformanceSample) TableName() string {
	return "performance_samples"
}

// TimeBucket is a derived aggregate over samples grouped into fixed-width
// windows. Buckets are computed on read; no stored aggregate is authoritative.
type TimeBucket struct {
	ProviderID   uuid.UUID `json:"provider_id"`
	Start        time.Time `json:"start"`
	AvgLatencyMS float64   `json:"avg_latency_ms"`
	SuccessRate  float64   `json:"success_rate"` // successes / sample_count, 0 when empty
	TotalCost    float64   `json:"total_cost"`
	TokensIn     int64     `json:"tokens_in"`
	TokensOut    int64     `json:"tokens_out"`
	SampleCount  int       `json:"sample_count"`
}

// HealthState classifies a provider from its recent outcome samples.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnknown   HealthState = "unknown" // zero recent samples
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthStatus is the derived health of one provider over the recent window.
type HealthStatus struct {
	ProviderID  uuid.UUID   `json:"provider_id"`
	State       HealthState `json:"state"`
	SuccessRate float64     `json:"success_rate"`
	SampleCount int         `json:"sample_count"`
}
