// Package prober actively measures provider health by sending a small
// probe message to every enabled provider on a fixed interval. Each probe
// outcome is recorded as a performance sample, the same record type the
// failover executor writes for real traffic.
package prober

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services/history"
	"github.com/llmops/provider-orchestrator/services/registry"
	"github.com/llmops/provider-orchestrator/services/upstream"
)

// Config holds prober tuning parameters.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Message  string
}

// Result is the outcome of one probe against one provider.
type Result struct {
	Provider models.Provider           `json:"provider"`
	Sample   models.PerformanceSample  `json:"sample"`
	Response *upstream.Response        `json:"response,omitempty"`
}

// Prober fans probes out to all enabled providers.
type Prober struct {
	cfg      Config
	logger   *zap.Logger
	registry *registry.Service
	store    *history.Store
	caller   upstream.Caller
}

// New creates a prober. Zero interval and timeout fall back to defaults so
// a partially filled config cannot stall the probe loop.
func New(cfg Config, reg *registry.Service, store *history.Store, caller upstream.Caller, logger *zap.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Prober{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		store:    store,
		caller:   caller,
	}
}

// Run probes on the configured interval until the context is cancelled.
// The first round fires immediately so a fresh process does not wait a full
// interval to learn provider health.
func (p *Prober) Run(ctx context.Context) {
	p.ProbeAll(ctx, p.cfg.Message)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeAll(ctx, p.cfg.Message)
		}
	}
}

// ProbeAll probes every enabled provider concurrently and records one
// sample per probe. It returns per-provider results, which the speed-test
// endpoint reuses with a caller-supplied message.
func (p *Prober) ProbeAll(ctx context.Context, message string) []Result {
	providers := p.registry.ListEnabled()
	if len(providers) == 0 {
		return nil
	}
	if message == "" {
		message = p.cfg.Message
	}

	results := make([]Result, len(providers))
	var wg sync.WaitGroup
	for i, provider := range providers {
		wg.Add(1)
		go func(i int, provider models.Provider) {
			defer wg.Done()
			results[i] = p.probe(ctx, provider, message)
		}(i, provider)
	}
	wg.Wait()

	return results
}

// probe performs one call with the probe timeout and records the sample.
func (p *Prober) probe(ctx context.Context, provider models.Provider, message string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.caller.Call(ctx, provider, upstream.Request{Message: message})
	elapsed := time.Since(start)

	sample := models.PerformanceSample{
		ProviderID: provider.ID,
		Timestamp:  start,
		LatencyMS:  elapsed.Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		sample.Error = err.Error()
		p.logger.Warn("probe failed",
			zap.String("provider", provider.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	} else {
		sample.Cost = resp.Cost
		sample.TokensIn = resp.TokensIn
		sample.TokensOut = resp.TokensOut
		p.logger.Debug("probe succeeded",
			zap.String("provider", provider.Name),
			zap.Duration("elapsed", elapsed))
	}

	p.store.Record(sample)

	return Result{Provider: provider, Sample: sample, Response: resp}
}
