package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/config"
	"github.com/llmops/provider-orchestrator/repositories"
	"github.com/llmops/provider-orchestrator/repositories/postgres"
	"github.com/llmops/provider-orchestrator/services/alerts"
	"github.com/llmops/provider-orchestrator/services/export"
	"github.com/llmops/provider-orchestrator/services/failover"
	"github.com/llmops/provider-orchestrator/services/history"
	"github.com/llmops/provider-orchestrator/services/prober"
	"github.com/llmops/provider-orchestrator/services/registry"
	"github.com/llmops/provider-orchestrator/services/selector"
	"github.com/llmops/provider-orchestrator/services/upstream"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
//
// The database is optional: without one the registry and history keep state
// in process and nothing survives a restart. Every repository field is nil
// in that mode and the services treat that as memory-only.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repositories (nil when no database is configured)
	Providers  repositories.ProviderRepository
	Samples    repositories.SampleRepository
	AlertRules repositories.AlertRuleRepository
	Alerts     repositories.AlertRepository

	// Core services
	Registry *registry.Service
	History  *history.Store
	Selector *selector.Selector
	Prober   *prober.Prober
	Executor *failover.Executor
	AlertEng *alerts.Engine
	Export   *export.Service

	// Background scheduling
	scheduler *cron.Cron
	cancelBg  context.CancelFunc
}

// timeNow is swapped in scheduler tests.
var timeNow = time.Now

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initServices(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initScheduler(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase connects to PostgreSQL and builds the repositories. A
// missing database configuration selects memory-only mode.
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if !cfg.Database.Persistent() {
		d.Logger.Warn("no database configured, running memory-only")
		return nil
	}

	db, err := postgres.NewDB(cfg.Database, d.Logger)
	if err != nil {
		return err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return err
	}

	d.DB = db
	d.Providers = postgres.NewProviderRepository(db, d.Logger)
	d.Samples = postgres.NewSampleRepository(db, d.Logger)
	d.AlertRules = postgres.NewAlertRuleRepository(db, d.Logger)
	d.Alerts = postgres.NewAlertRepository(db, d.Logger)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices builds the service graph and loads durable state.
func (d *Dependencies) initServices(ctx context.Context, cfg *config.Config) error {
	d.Registry = registry.NewService(d.Providers, d.Logger)
	if err := d.Registry.Load(ctx); err != nil {
		return err
	}

	d.History = history.NewStore(history.Config{
		RingCapacity:     cfg.History.RingCapacity,
		BucketWidth:      cfg.History.BucketWidth,
		HealthWindow:     cfg.Selector.HealthWindow,
		HealthMinSamples: cfg.Selector.HealthMinSamples,
		HealthyThreshold: cfg.Selector.HealthyThreshold,
	}, d.Samples, d.Logger)

	mode, err := selector.ParseMode(cfg.Selector.DefaultMode)
	if err != nil {
		return err
	}
	d.Selector = selector.New(d.Registry, d.History, mode, d.Logger)

	caller := upstream.NewHTTPCaller(d.Logger)

	d.Prober = prober.New(prober.Config{
		Interval: cfg.Prober.Interval,
		Timeout:  cfg.Prober.Timeout,
		Message:  cfg.Prober.Message,
	}, d.Registry, d.History, caller, d.Logger)

	d.Executor = failover.NewExecutor(failover.Config{
		AttemptTimeout: cfg.Failover.AttemptTimeout,
	}, d.Selector, d.History, caller, d.Logger)

	d.AlertEng = alerts.NewEngine(alerts.Config{
		DefaultCooldown: cfg.Alerts.DefaultCooldown,
		RecentLimit:     cfg.Alerts.RecentLimit,
	}, d.History, d.Registry, d.AlertRules, d.Alerts, d.Logger)
	d.AlertEng.RegisterNotifier(alerts.NewLogNotifier(d.Logger))
	if cfg.Alerts.WebhookURL != "" {
		d.AlertEng.RegisterNotifier(alerts.NewWebhookNotifier(cfg.Alerts.WebhookURL, cfg.Alerts.WebhookTimeout, d.Logger))
	}
	if err := d.AlertEng.Load(ctx); err != nil {
		return err
	}

	// New samples trigger an alert pass without waiting for the schedule.
	d.History.OnRecord(d.AlertEng.Kick)

	d.Export = export.NewService(export.Config{
		MaxDays: cfg.Export.MaxDays,
	}, d.Registry, d.History, d.Logger)

	return nil
}

// initScheduler registers the cron entries for alert evaluation and sample
// retention pruning.
func (d *Dependencies) initScheduler(cfg *config.Config) error {
	d.scheduler = cron.New()

	if _, err := d.scheduler.AddFunc(cfg.Alerts.EvaluationSchedule, func() {
		d.AlertEng.Evaluate(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid alert evaluation schedule %q: %w", cfg.Alerts.EvaluationSchedule, err)
	}

	if _, err := d.scheduler.AddFunc(cfg.Export.PruneSchedule, func() {
		cutoff := timeNow().Add(-cfg.Export.Retention)
		if _, err := d.History.Prune(context.Background(), cutoff); err != nil {
			d.Logger.Error("sample retention pruning failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", cfg.Export.PruneSchedule, err)
	}

	return nil
}

// Start launches the background loops: prober, history persister, alert
// kick listener, and the cron scheduler.
func (d *Dependencies) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancelBg = cancel

	go d.History.Run(ctx)
	go d.Prober.Run(ctx)
	go d.AlertEng.Run(ctx)
	d.scheduler.Start()

	d.Logger.Info("background loops started",
		zap.Duration("probe_interval", d.Config.Prober.Interval),
		zap.String("alert_schedule", d.Config.Alerts.EvaluationSchedule))
}

// Close gracefully shuts down all dependencies.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.cancelBg != nil {
		d.cancelBg()
	}
	if d.scheduler != nil {
		stopCtx := d.scheduler.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	var errs []error
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
