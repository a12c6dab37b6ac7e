// Package failover executes a request against the ranked provider list,
// walking candidates in order until one succeeds. Every attempt, success or
// failure, is recorded as a performance sample so failed attempts feed
// future rankings.
package failover

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services"
	"github.com/llmops/provider-orchestrator/services/history"
	"github.com/llmops/provider-orchestrator/services/selector"
	"github.com/llmops/provider-orchestrator/services/upstream"
)

// Config holds failover tuning parameters.
type Config struct {
	// AttemptTimeout caps each single attempt. The effective per-attempt
	// deadline is the smaller of this and whatever remains on the request
	// context.
	AttemptTimeout time.Duration
}

// AttemptFailure is one failed candidate within an exhausted failover run.
type AttemptFailure struct {
	Provider models.Provider `json:"provider"`
	Reason   string          `json:"reason"`
}

// ExhaustedError reports that every candidate provider failed, with the
// per-provider reasons. It carries the aggregate error type.
type ExhaustedError struct {
	Failures []AttemptFailure
}

func (e *ExhaustedError) Error() string {
	reasons := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		reasons[i] = fmt.Sprintf("%s: %s", f.Provider.Name, f.Reason)
	}
	return fmt.Sprintf("all %d providers failed: %s", len(e.Failures), strings.Join(reasons, "; "))
}

// Is makes the error match the aggregate domain error category.
func (e *ExhaustedError) Is(target error) bool {
	de, ok := target.(*services.DomainError)
	return ok && de.Type == services.ErrorTypeAggregate
}

// Outcome is a successful failover execution.
type Outcome struct {
	Response *upstream.Response `json:"response"`
	Provider models.Provider    `json:"provider"`
	Attempts int                `json:"attempts"`
	Mode     selector.Mode      `json:"mode"`
	Degraded bool               `json:"degraded"`
}

// Executor routes requests through the selector's ranking with sequential
// failover.
type Executor struct {
	cfg      Config
	logger   *zap.Logger
	selector *selector.Selector
	store    *history.Store
	caller   upstream.Caller
}

// NewExecutor creates a failover executor.
func NewExecutor(cfg Config, sel *selector.Selector, store *history.Store, caller upstream.Caller, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:      cfg,
		logger:   logger,
		selector: sel,
		store:    store,
		caller:   caller,
	}
}

// Execute ranks candidates for the mode (empty means the default) and tries
// them in order. The first success wins and remaining candidates are never
// touched. With no enabled providers it returns a configuration error
// without recording any sample; once attempts start, every attempt records
// exactly one sample.
func (e *Executor) Execute(ctx context.Context, mode selector.Mode, req upstream.Request) (*Outcome, error) {
	result, err := e.selector.Select(mode)
	if err != nil {
		return nil, err
	}

	var failures []AttemptFailure
	for i, candidate := range result.Candidates {
		if ctx.Err() != nil {
			break
		}

		resp, attemptErr := e.attempt(ctx, candidate.Provider, req)
		if attemptErr == nil {
			e.logger.Info("request served",
				zap.String("provider", candidate.Provider.Name),
				zap.String("mode", string(result.Mode)),
				zap.Int("attempt", i+1))
			return &Outcome{
				Response: resp,
				Provider: candidate.Provider,
				Attempts: i + 1,
				Mode:     result.Mode,
				Degraded: result.Degraded,
			}, nil
		}

		failures = append(failures, AttemptFailure{
			Provider: candidate.Provider,
			Reason:   attemptErr.Error(),
		})
		e.logger.Warn("attempt failed, trying next candidate",
			zap.String("provider", candidate.Provider.Name),
			zap.Int("attempt", i+1),
			zap.Int("remaining", len(result.Candidates)-i-1),
			zap.Error(attemptErr))
	}

	// A dead context with candidates still untried is a caller timeout,
	// not an exhausted candidate list.
	if err := ctx.Err(); err != nil && len(failures) < len(result.Candidates) {
		e.logger.Warn("failover abandoned, request context done",
			zap.Int("attempts", len(failures)),
			zap.Int("untried", len(result.Candidates)-len(failures)),
			zap.Error(err))
		return nil, services.WrapUpstream("request context done with candidates untried", err)
	}

	return nil, &ExhaustedError{Failures: failures}
}

// attempt performs one candidate call under the per-attempt deadline and
// records the resulting sample.
func (e *Executor) attempt(ctx context.Context, provider models.Provider, req upstream.Request) (*upstream.Response, error) {
	attemptCtx := ctx
	if e.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := e.caller.Call(attemptCtx, provider, req)
	elapsed := time.Since(start)

	sample := models.PerformanceSample{
		ProviderID: provider.ID,
		Timestamp:  start,
		LatencyMS:  elapsed.Milliseconds(),
		Success:    err == nil,
	}
	if err != nil {
		sample.Error = err.Error()
	} else {
		sample.Cost = resp.Cost
		sample.TokensIn = resp.TokensIn
		sample.TokensOut = resp.TokensOut
	}
	e.store.Record(sample)

	return resp, err
}
