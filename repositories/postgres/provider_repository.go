package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/repositories"
)

// ProviderRepository implements the repositories.ProviderRepository interface
type ProviderRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(db *DB, logger *zap.Logger) repositories.ProviderRepository {
	return &ProviderRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or updates a provider
func (r *ProviderRepository) Upsert(ctx context.Context, provider *models.Provider) error {
	query := `
		INSERT INTO providers (id, name, endpoint, credential, model, priority, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			endpoint = EXCLUDED.endpoint,
			credential = EXCLUDED.credential,
			model = EXCLUDED.model,
			priority = EXCLUDED.priority,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		provider.ID,
		provider.Name,
		provider.Endpoint,
		provider.Credential,
		provider.Model,
		provider.Priority,
		provider.Enabled,
		provider.CreatedAt,
		provider.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert provider: %w", err)
	}

	r.logger.Debug("provider upserted", zap.String("id", provider.ID.String()))
	return nil
}

// List returns all providers ordered by priority then id
func (r *ProviderRepository) List(ctx context.Context) ([]models.Provider, error) {
	query := `
		SELECT id, name, endpoint, credential, model, priority, enabled, created_at, updated_at
		FROM providers
		ORDER BY priority ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		var p models.Provider
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Endpoint,
			&p.Credential,
			&p.Model,
			&p.Priority,
			&p.Enabled,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider rows: %w", err)
	}

	return providers, nil
}

// SetEnabled flips the enabled flag of a provider
func (r *ProviderRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `
		UPDATE providers
		SET enabled = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to set provider enabled: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("provider not found: %s", id)
	}

	r.logger.Debug("provider enabled flag updated",
		zap.String("id", id.String()),
		zap.Bool("enabled", enabled))
	return nil
}
