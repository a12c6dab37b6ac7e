package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/repositories"
)

// SampleRepository implements the repositories.SampleRepository interface.
// Samples are append-only; this repository exposes no update path.
type SampleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSampleRepository creates a new sample repository
func NewSampleRepository(db *DB, logger *zap.Logger) repositories.SampleRepository {
	return &SampleRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a performance sample
func (r *SampleRepository) Insert(ctx context.Context, sample *models.PerformanceSample) error {
	query := `
		INSERT INTO performance_samples (id, provider_id, timestamp, latency_ms, success, cost, tokens_in, tokens_out, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		sample.ID,
		sample.ProviderID,
		sample.Timestamp,
		sample.LatencyMS,
		sample.Success,
		sample.Cost,
		sample.TokensIn,
		sample.TokensOut,
		sample.Error,
	)

	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}

	return nil
}

// ListRange returns samples for one provider within [from, to) ascending by timestamp
func (r *SampleRepository) ListRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]models.PerformanceSample, error) {
	query := `
		SELECT id, provider_id, timestamp, latency_ms, success, cost, tokens_in, tokens_out, error_message
		FROM performance_samples
		WHERE provider_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC
	`

	return r.querySamples(ctx, query, providerID, from, to)
}

// ListRecent returns the newest samples across all providers
func (r *SampleRepository) ListRecent(ctx context.Context, limit int) ([]models.PerformanceSample, error) {
	query := `
		SELECT id, provider_id, timestamp, latency_ms, success, cost, tokens_in, tokens_out, error_message
		FROM performance_samples
		ORDER BY timestamp DESC
		LIMIT $1
	`

	return r.querySamples(ctx, query, limit)
}

// DeleteOlderThan prunes samples outside the retention window
func (r *SampleRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM performance_samples WHERE timestamp < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		r.logger.Info("pruned performance samples",
			zap.Int64("rows_deleted", rowsAffected),
			zap.Time("cutoff", cutoff))
	}

	return rowsAffected, nil
}

// querySamples is a helper method to query multiple samples
func (r *SampleRepository) querySamples(ctx context.Context, query string, args ...interface{}) ([]models.PerformanceSample, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []models.PerformanceSample
	for rows.Next() {
		var s models.PerformanceSample
		err := rows.Scan(
			&s.ID,
			&s.ProviderID,
			&s.Timestamp,
			&s.LatencyMS,
			&s.Success,
			&s.Cost,
			&s.TokensIn,
			&s.TokensOut,
			&s.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample rows: %w", err)
	}

	return samples, nil
}
