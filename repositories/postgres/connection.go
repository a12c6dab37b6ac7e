package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// NewDBFromSQL wraps an existing *sql.DB, used by sqlmock-backed tests
func NewDBFromSQL(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Provider configuration
		CREATE TABLE IF NOT EXISTS providers (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			endpoint TEXT NOT NULL,
			credential TEXT NOT NULL DEFAULT '',
			model VARCHAR(255) NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Append-only performance samples
		CREATE TABLE IF NOT EXISTS performance_samples (
			id UUID PRIMARY KEY,
			provider_id UUID NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			latency_ms BIGINT NOT NULL,
			success BOOLEAN NOT NULL,
			cost DECIMAL(12, 8) NOT NULL DEFAULT 0,
			tokens_in INTEGER NOT NULL DEFAULT 0,
			tokens_out INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT ''
		);

		-- Alert rules
		CREATE TABLE IF NOT EXISTS alert_rules (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			condition_type VARCHAR(50) NOT NULL,
			threshold DOUBLE PRECISION NOT NULL,
			cooldown_minutes INTEGER NOT NULL DEFAULT 15,
			severity VARCHAR(20) NOT NULL DEFAULT 'warning',
			notification_channels TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Fired alerts
		CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			rule_id UUID NOT NULL,
			provider_id UUID NOT NULL,
			condition VARCHAR(50) NOT NULL,
			message TEXT NOT NULL,
			severity VARCHAR(20) NOT NULL,
			timestamp TIMESTAMP NOT NULL
		);

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_providers_enabled ON providers(enabled);
		CREATE INDEX IF NOT EXISTS idx_providers_priority ON providers(priority);

		CREATE INDEX IF NOT EXISTS idx_samples_provider_ts ON performance_samples(provider_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_samples_ts ON performance_samples(timestamp);

		CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(timestamp);
		CREATE INDEX IF NOT EXISTS idx_alerts_provider ON alerts(provider_id);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
