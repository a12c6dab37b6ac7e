// Package selector ranks enabled providers by an optimization mode using
// the trailing performance window. Rankings are computed fresh from a
// single history snapshot per call, so one decision never mixes pre- and
// post-update state.
package selector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services"
	"github.com/llmops/provider-orchestrator/services/history"
	"github.com/llmops/provider-orchestrator/services/registry"
)

// Mode is an optimization mode.
type Mode string

const (
	// ModeFastest ranks by average latency ascending.
	ModeFastest Mode = "fastest"
	// ModeCheapest ranks by cost per 1K tokens ascending.
	ModeCheapest Mode = "cheapest"
	// ModeBalanced fuses the latency and cost orderings by rank sum.
	ModeBalanced Mode = "balanced"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFastest, ModeCheapest, ModeBalanced:
		return Mode(s), nil
	}
	return "", services.NewDomainError(services.ErrorTypeConfiguration,
		fmt.Sprintf("unknown optimization mode: %q", s), nil).WithDetail("mode", s)
}

// Candidate is one ranked provider with the stats that placed it.
type Candidate struct {
	Provider models.Provider       `json:"provider"`
	Stats    history.ProviderStats `json:"stats"`
	Reason   string                `json:"reason"`
}

// Result is an ordered selection. Degraded is set when every enabled
// provider was unhealthy and the ranking fell back to configuration
// priority.
type Result struct {
	Mode       Mode        `json:"mode"`
	Candidates []Candidate `json:"candidates"`
	Degraded   bool        `json:"degraded"`
}

// Selector computes provider rankings. It also carries the service-wide
// default mode, guarded for concurrent reads from request handlers.
type Selector struct {
	logger   *zap.Logger
	registry *registry.Service
	store    *history.Store

	mu          sync.RWMutex
	defaultMode Mode
}

// New creates a selector with the given default mode.
func New(reg *registry.Service, store *history.Store, defaultMode Mode, logger *zap.Logger) *Selector {
	return &Selector{
		logger:      logger,
		registry:    reg,
		store:       store,
		defaultMode: defaultMode,
	}
}

// Mode returns the current default optimization mode.
func (s *Selector) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultMode
}

// SetMode changes the default optimization mode.
func (s *Selector) SetMode(mode Mode) {
	s.mu.Lock()
	s.defaultMode = mode
	s.mu.Unlock()
	s.logger.Info("default optimization mode changed", zap.String("mode", string(mode)))
}

// Select ranks the enabled providers for the given mode. An empty mode
// uses the default. Unhealthy providers are excluded unless every enabled
// provider is unhealthy, in which case the full list is returned in
// priority order and the result is marked degraded. Providers with no
// recent samples rank after those with known stats.
func (s *Selector) Select(mode Mode) (*Result, error) {
	if mode == "" {
		mode = s.Mode()
	} else if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	enabled := s.registry.ListEnabled()
	if len(enabled) == 0 {
		return nil, services.ErrNoEnabledProviders
	}

	stats := s.store.Snapshot(0)

	var known, unknown, unhealthy []Candidate
	for _, p := range enabled {
		st, ok := stats[p.ID]
		if !ok {
			st = history.ProviderStats{ProviderID: p.ID, Health: models.HealthUnknown}
		}
		c := Candidate{Provider: p, Stats: st}
		switch st.Health {
		case models.HealthUnhealthy:
			unhealthy = append(unhealthy, c)
		case models.HealthUnknown:
			unknown = append(unknown, c)
		default:
			known = append(known, c)
		}
	}

	result := &Result{Mode: mode}

	if len(known) == 0 && len(unknown) == 0 {
		// Every enabled provider is unhealthy. Refusing to route would
		// turn a partial outage into a total one, so fall back to
		// configuration priority and flag the degradation.
		sortByPriority(unhealthy)
		for i := range unhealthy {
			unhealthy[i].Reason = "all providers unhealthy, priority order"
		}
		result.Candidates = unhealthy
		result.Degraded = true
		s.logger.Warn("selection degraded, all enabled providers unhealthy",
			zap.Int("count", len(unhealthy)))
		return result, nil
	}

	rank(mode, known)
	sortByPriority(unknown)
	for i := range unknown {
		unknown[i].Reason = "no recent samples"
	}

	result.Candidates = append(known, unknown...)
	return result, nil
}

// rank orders candidates in place for the given mode and fills in reasons.
func rank(mode Mode, candidates []Candidate) {
	switch mode {
	case ModeFastest:
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Stats.AvgLatencyMS != candidates[j].Stats.AvgLatencyMS {
				return candidates[i].Stats.AvgLatencyMS < candidates[j].Stats.AvgLatencyMS
			}
			return tieBreak(candidates[i], candidates[j])
		})
		for i := range candidates {
			candidates[i].Reason = fmt.Sprintf("avg latency %.0fms", candidates[i].Stats.AvgLatencyMS)
		}

	case ModeCheapest:
		sort.SliceStable(candidates, func(i, j int) bool {
			ci, cj := candidates[i].Stats.CostPer1KTokens(), candidates[j].Stats.CostPer1KTokens()
			if ci != cj {
				return ci < cj
			}
			return tieBreak(candidates[i], candidates[j])
		})
		for i := range candidates {
			candidates[i].Reason = fmt.Sprintf("cost $%.6f/1k tokens", candidates[i].Stats.CostPer1KTokens())
		}

	case ModeBalanced:
		latencyRank := rankPositions(candidates, func(c Candidate) float64 { return c.Stats.AvgLatencyMS })
		costRank := rankPositions(candidates, func(c Candidate) float64 { return c.Stats.CostPer1KTokens() })
		score := make(map[uuid.UUID]int, len(candidates))
		for _, c := range candidates {
			score[c.Provider.ID] = latencyRank[c.Provider.ID] + costRank[c.Provider.ID]
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			si, sj := score[candidates[i].Provider.ID], score[candidates[j].Provider.ID]
			if si != sj {
				return si < sj
			}
			return tieBreak(candidates[i], candidates[j])
		})
		for i := range candidates {
			candidates[i].Reason = fmt.Sprintf("balanced rank %d (latency %d + cost %d)",
				score[candidates[i].Provider.ID],
				latencyRank[candidates[i].Provider.ID],
				costRank[candidates[i].Provider.ID])
		}
	}
}

// rankPositions assigns each candidate its 0-based position in the ordering
// by key ascending. Equal keys share the lower position so the fused score
// stays symmetric.
func rankPositions(candidates []Candidate, key func(Candidate) float64) map[uuid.UUID]int {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool { return key(ordered[i]) < key(ordered[j]) })

	ranks := make(map[uuid.UUID]int, len(ordered))
	for i, c := range ordered {
		if i > 0 && key(c) == key(ordered[i-1]) {
			ranks[c.Provider.ID] = ranks[ordered[i-1].Provider.ID]
			continue
		}
		ranks[c.Provider.ID] = i
	}
	return ranks
}

func sortByPriority(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return tieBreak(candidates[i], candidates[j])
	})
}

// tieBreak is the deterministic final ordering: configuration priority,
// then id.
func tieBreak(a, b Candidate) bool {
	if a.Provider.Priority != b.Provider.Priority {
		return a.Provider.Priority < b.Provider.Priority
	}
	return a.Provider.ID.String() < b.Provider.ID.String()
}
