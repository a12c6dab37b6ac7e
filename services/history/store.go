// Package history implements the performance history store: an append-only
// record of upstream call outcomes with time-bucketed aggregation computed
// on read. Recent samples live in a bounded per-provider ring buffer; when a
// durable repository is configured every sample is also written through to
// it by a background writer, and queries that reach past the in-memory
// window fall back to durable storage.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/repositories"
)

// persistBuffer bounds the write-through queue. When the writer cannot keep
// up, samples are dropped from the durable path only; the in-memory ring
// still holds them.
const persistBuffer = 1024

// Config holds history store tuning parameters.
type Config struct {
	RingCapacity     int
	BucketWidth      time.Duration
	HealthWindow     time.Duration
	HealthMinSamples int
	HealthyThreshold float64
}

// DefaultConfig returns the default history configuration.
func DefaultConfig() Config {
	return Config{
		RingCapacity:     10000,
		BucketWidth:      15 * time.Minute,
		HealthWindow:     10 * time.Minute,
		HealthMinSamples: 20,
		HealthyThreshold: 0.5,
	}
}

// ProviderStats is the aggregate view of one provider over a trailing
// window, as used by the selector and the alert engine.
type ProviderStats struct {
	ProviderID   uuid.UUID          `json:"provider_id"`
	AvgLatencyMS float64            `json:"avg_latency_ms"`
	SuccessRate  float64            `json:"success_rate"`
	TotalCost    float64            `json:"total_cost"`
	TokensIn     int64              `json:"tokens_in"`
	TokensOut    int64              `json:"tokens_out"`
	SampleCount  int                `json:"sample_count"`
	Health       models.HealthState `json:"health"`
}

// CostPer1KTokens estimates the provider cost per 1000 tokens from the
// trailing window. Returns 0 when no tokens were observed.
func (s ProviderStats) CostPer1KTokens() float64 {
	tokens := s.TokensIn + s.TokensOut
	if tokens == 0 {
		return 0
	}
	return s.TotalCost / float64(tokens) * 1000
}

// ring is a fixed-capacity append-only buffer of samples for one provider.
type ring struct {
	buf  []models.PerformanceSample
	next int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]models.PerformanceSample, capacity)}
}

func (r *ring) append(s models.PerformanceSample) {
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// ordered returns the ring contents in insertion order.
func (r *ring) ordered() []models.PerformanceSample {
	out := make([]models.PerformanceSample, 0, r.size)
	if r.size < len(r.buf) {
		out = append(out, r.buf[:r.size]...)
		return out
	}
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// Store is the performance history store. All methods are safe for
// concurrent use by multiple prober goroutines and in-flight executor calls.
type Store struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.RWMutex
	rings map[uuid.UUID]*ring

	repo      repositories.SampleRepository // nil in memory-only mode
	persistCh chan models.PerformanceSample

	kickMu   sync.Mutex
	onRecord func()
}

// NewStore creates a history store. repo may be nil, in which case samples
// live in memory only.
func NewStore(cfg Config, repo repositories.SampleRepository, logger *zap.Logger) *Store {
	if cfg.RingCapacity <= 0 {
		cfg.RingCapacity = DefaultConfig().RingCapacity
	}
	return &Store{
		cfg:       cfg,
		logger:    logger,
		rings:     make(map[uuid.UUID]*ring),
		repo:      repo,
		persistCh: make(chan models.PerformanceSample, persistBuffer),
	}
}

// OnRecord registers a callback invoked after every recorded sample. The
// callback must not block; the alert engine uses it to trigger an
// evaluation pass.
func (s *Store) OnRecord(fn func()) {
	s.kickMu.Lock()
	defer s.kickMu.Unlock()
	s.onRecord = fn
}

// Record appends a sample. The in-memory append always succeeds; the
// durable write-through is asynchronous and storage failures never reach
// the recording caller.
func (s *Store) Record(sample models.PerformanceSample) {
	if sample.ID == uuid.Nil {
		sample.ID = uuid.New()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	s.mu.Lock()
	r, ok := s.rings[sample.ProviderID]
	if !ok {
		r = newRing(s.cfg.RingCapacity)
		s.rings[sample.ProviderID] = r
	}
	r.append(sample)
	s.mu.Unlock()

	if s.repo != nil {
		select {
		case s.persistCh <- sample:
		default:
			s.logger.Warn("sample persist queue full, dropping durable copy",
				zap.String("provider_id", sample.ProviderID.String()))
		}
	}

	s.kickMu.Lock()
	kick := s.onRecord
	s.kickMu.Unlock()
	if kick != nil {
		kick()
	}
}

// Run drains the write-through queue into durable storage until the context
// is cancelled. Storage errors are logged and the loop continues; they must
// not take down recording.
func (s *Store) Run(ctx context.Context) {
	if s.repo == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-s.persistCh:
			if err := s.repo.Insert(ctx, &sample); err != nil && ctx.Err() == nil {
				s.logger.Error("failed to persist sample",
					zap.String("provider_id", sample.ProviderID.String()),
					zap.Error(err))
			}
		}
	}
}

// Query returns time buckets for one provider over [from, to). Buckets are
// aligned to multiples of width and only non-empty buckets are returned,
// ascending by start time. Aggregates are always computed from raw samples;
// no stored rollup is consulted.
func (s *Store) Query(ctx context.Context, providerID uuid.UUID, from, to time.Time, width time.Duration) ([]models.TimeBucket, error) {
	if width <= 0 {
		width = s.cfg.BucketWidth
	}

	samples, err := s.rangeSamples(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	byStart := make(map[time.Time][]models.PerformanceSample)
	for _, sample := range samples {
		start := sample.Timestamp.Truncate(width)
		byStart[start] = append(byStart[start], sample)
	}

	buckets := make([]models.TimeBucket, 0, len(byStart))
	for start, group := range byStart {
		b := reduce(providerID, group)
		b.Start = start
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })

	return buckets, nil
}

// rangeSamples returns raw samples in [from, to). The ring covers the range
// only when its oldest sample is at or before from; a ring that started
// later (process restart, eviction) may be missing durable samples the
// range still needs, so those are read back and merged in.
func (s *Store) rangeSamples(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]models.PerformanceSample, error) {
	s.mu.RLock()
	var inMem []models.PerformanceSample
	if r, ok := s.rings[providerID]; ok {
		inMem = r.ordered()
	}
	s.mu.RUnlock()

	inRange := inMem[:0:0]
	for _, sample := range inMem {
		if !sample.Timestamp.Before(from) && sample.Timestamp.Before(to) {
			inRange = append(inRange, sample)
		}
	}

	if s.repo == nil || (len(inMem) > 0 && !inMem[0].Timestamp.After(from)) {
		return inRange, nil
	}

	durable, err := s.repo.ListRange(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	// The write-through means recent samples can exist in both places.
	seen := make(map[uuid.UUID]struct{}, len(durable))
	for _, sample := range durable {
		seen[sample.ID] = struct{}{}
	}
	merged := durable
	for _, sample := range inRange {
		if _, ok := seen[sample.ID]; !ok {
			merged = append(merged, sample)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
	return merged, nil
}

// reduce folds samples into a single bucket. success_rate is defined as 0
// for an empty group.
func reduce(providerID uuid.UUID, samples []models.PerformanceSample) models.TimeBucket {
	b := models.TimeBucket{ProviderID: providerID, SampleCount: len(samples)}
	if len(samples) == 0 {
		return b
	}

	var latencySum int64
	var successes int
	for _, s := range samples {
		latencySum += s.LatencyMS
		if s.Success {
			successes++
		}
		b.TotalCost += s.Cost
		b.TokensIn += int64(s.TokensIn)
		b.TokensOut += int64(s.TokensOut)
	}
	b.AvgLatencyMS = float64(latencySum) / float64(len(samples))
	b.SuccessRate = float64(successes) / float64(len(samples))
	return b
}

// RecentHealth derives the health of one provider from its most recent
// samples: those inside the trailing health window, capped at the most
// recent HealthMinSamples. Zero recent samples means unknown, never healthy.
func (s *Store) RecentHealth(providerID uuid.UUID) models.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthLocked(providerID, time.Now())
}

func (s *Store) healthLocked(providerID uuid.UUID, now time.Time) models.HealthStatus {
	status := models.HealthStatus{ProviderID: providerID, State: models.HealthUnknown}

	r, ok := s.rings[providerID]
	if !ok {
		return status
	}

	recent := samplesSince(r.ordered(), now.Add(-s.cfg.HealthWindow))
	if len(recent) > s.cfg.HealthMinSamples && s.cfg.HealthMinSamples > 0 {
		recent = recent[len(recent)-s.cfg.HealthMinSamples:]
	}
	if len(recent) == 0 {
		return status
	}

	successes := 0
	for _, sample := range recent {
		if sample.Success {
			successes++
		}
	}
	status.SampleCount = len(recent)
	status.SuccessRate = float64(successes) / float64(len(recent))
	if status.SuccessRate >= s.cfg.HealthyThreshold {
		status.State = models.HealthHealthy
	} else {
		status.State = models.HealthUnhealthy
	}
	return status
}

// Snapshot aggregates every provider's trailing window under a single read
// lock, so one selection decision never mixes pre- and post-update state.
func (s *Store) Snapshot(window time.Duration) map[uuid.UUID]ProviderStats {
	if window <= 0 {
		window = s.cfg.HealthWindow
	}
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[uuid.UUID]ProviderStats, len(s.rings))
	for providerID, r := range s.rings {
		recent := samplesSince(r.ordered(), now.Add(-window))
		bucket := reduce(providerID, recent)
		snapshot[providerID] = ProviderStats{
			ProviderID:   providerID,
			AvgLatencyMS: bucket.AvgLatencyMS,
			SuccessRate:  bucket.SuccessRate,
			TotalCost:    bucket.TotalCost,
			TokensIn:     bucket.TokensIn,
			TokensOut:    bucket.TokensOut,
			SampleCount:  bucket.SampleCount,
			Health:       s.healthLocked(providerID, now).State,
		}
	}
	return snapshot
}

// Recent returns the newest samples across all providers, descending by
// timestamp. Durable storage is consulted when configured so the result
// survives restarts; otherwise the rings are merged.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.PerformanceSample, error) {
	if limit <= 0 {
		limit = 100
	}

	if s.repo != nil {
		return s.repo.ListRecent(ctx, limit)
	}

	s.mu.RLock()
	var all []models.PerformanceSample
	for _, r := range s.rings {
		all = append(all, r.ordered()...)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Prune removes durable samples older than the cutoff. The in-memory rings
// are capacity-bounded and need no pruning.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.repo == nil {
		return 0, nil
	}
	return s.repo.DeleteOlderThan(ctx, cutoff)
}

// samplesSince filters ordered samples to those at or after the cutoff.
// Ordered input means a binary search would do, but rings hold at most
// RingCapacity entries and snapshots are not on the per-request hot path.
func samplesSince(samples []models.PerformanceSample, cutoff time.Time) []models.PerformanceSample {
	out := samples[:0:0]
	for _, s := range samples {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}
