// Package registry holds the provider registry: the authoritative in-memory
// set of upstream provider configurations, with optional write-through to
// durable storage.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/repositories"
	"github.com/llmops/provider-orchestrator/services"
	"github.com/llmops/provider-orchestrator/utils"
)

// Service manages provider configurations. Reads are served from memory;
// mutations update memory first and then write through to the repository
// when one is configured.
type Service struct {
	logger *zap.Logger
	repo   repositories.ProviderRepository // nil in memory-only mode

	mu        sync.RWMutex
	providers map[uuid.UUID]models.Provider

	onChange func()
}

// NewService creates a provider registry. repo may be nil.
func NewService(repo repositories.ProviderRepository, logger *zap.Logger) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		providers: make(map[uuid.UUID]models.Provider),
	}
}

// OnChange registers a callback invoked after every successful mutation.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Load populates the registry from durable storage. Called once at startup;
// a missing repository is not an error.
func (s *Service) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	providers, err := s.repo.List(ctx)
	if err != nil {
		return services.WrapStorage("failed to load providers", err)
	}

	s.mu.Lock()
	for _, p := range providers {
		s.providers[p.ID] = p
	}
	s.mu.Unlock()

	s.logger.Info("provider registry loaded", zap.Int("count", len(providers)))
	return nil
}

// List returns all registered providers ordered by priority ascending, ties
// broken by id for a stable order.
func (s *Service) List() []models.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(func(models.Provider) bool { return true })
}

// ListEnabled returns enabled providers in the same stable order as List.
func (s *Service) ListEnabled() []models.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(func(p models.Provider) bool { return p.Enabled })
}

// Get returns one provider by id.
func (s *Service) Get(id uuid.UUID) (models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return models.Provider{}, services.ErrProviderNotFound
	}
	return p, nil
}

// Upsert validates and stores a provider configuration. A provider with an
// unknown id is created; a known id is replaced. The credential field is
// accepted opaquely and never validated beyond presence rules.
func (s *Service) Upsert(ctx context.Context, provider *models.Provider) error {
	if provider.ID == uuid.Nil {
		provider.ID = uuid.New()
	}
	if err := utils.ValidateStruct(provider); err != nil {
		return err
	}
	if err := utils.ValidateEndpoint(provider.Endpoint); err != nil {
		return err
	}

	now := time.Now()
	provider.UpdatedAt = now

	s.mu.Lock()
	if existing, ok := s.providers[provider.ID]; ok {
		provider.CreatedAt = existing.CreatedAt
	} else if provider.CreatedAt.IsZero() {
		provider.CreatedAt = now
	}
	s.providers[provider.ID] = *provider
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Upsert(ctx, provider); err != nil {
			return services.WrapStorage("failed to persist provider", err)
		}
	}

	s.logger.Info("provider upserted",
		zap.String("id", provider.ID.String()),
		zap.String("name", provider.Name),
		zap.Int("priority", provider.Priority),
		zap.Bool("enabled", provider.Enabled))

	s.notify()
	return nil
}

// SetEnabled flips a provider's enabled flag.
func (s *Service) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	s.mu.Lock()
	p, ok := s.providers[id]
	if !ok {
		s.mu.Unlock()
		return services.ErrProviderNotFound
	}
	p.Enabled = enabled
	p.UpdatedAt = time.Now()
	s.providers[id] = p
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SetEnabled(ctx, id, enabled); err != nil {
			return services.WrapStorage("failed to persist enabled flag", err)
		}
	}

	s.logger.Info("provider enabled flag changed",
		zap.String("id", id.String()),
		zap.Bool("enabled", enabled))

	s.notify()
	return nil
}

func (s *Service) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// sortedLocked returns matching providers by priority then id. Caller holds
// at least a read lock.
func (s *Service) sortedLocked(match func(models.Provider) bool) []models.Provider {
	out := make([]models.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		if match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
