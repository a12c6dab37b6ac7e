package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services"
	"github.com/llmops/provider-orchestrator/utils"
)

func newService(t *testing.T) *Service {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewService(nil, logger)
}

func TestService_UpsertAndList(t *testing.T) {
	svc := newService(t)

	second := models.NewProvider("beta", "https://beta.example.com", "key-b", "model-b", 2)
	first := models.NewProvider("alpha", "https://alpha.example.com", "key-a", "model-a", 1)
	require.NoError(t, svc.Upsert(context.Background(), second))
	require.NoError(t, svc.Upsert(context.Background(), first))

	t.Run("list orders by priority", func(t *testing.T) {
		providers := svc.List()
		require.Len(t, providers, 2)
		assert.Equal(t, "alpha", providers[0].Name)
		assert.Equal(t, "beta", providers[1].Name)
	})

	t.Run("upsert with known id replaces", func(t *testing.T) {
		first.Model = "model-a2"
		require.NoError(t, svc.Upsert(context.Background(), first))

		providers := svc.List()
		require.Len(t, providers, 2)
		assert.Equal(t, "model-a2", providers[0].Model)
	})

	t.Run("upsert assigns id when missing", func(t *testing.T) {
		p := &models.Provider{Name: "gamma", Endpoint: "https://gamma.example.com", Model: "model-g"}
		require.NoError(t, svc.Upsert(context.Background(), p))
		assert.NotEqual(t, uuid.Nil, p.ID)
		assert.False(t, p.CreatedAt.IsZero())
	})
}

func TestService_UpsertValidation(t *testing.T) {
	svc := newService(t)

	t.Run("missing name", func(t *testing.T) {
		p := &models.Provider{Endpoint: "https://x.example.com", Model: "m"}
		err := svc.Upsert(context.Background(), p)
		require.Error(t, err)
		assert.True(t, utils.IsValidationError(err))
		assert.Contains(t, utils.GetValidationFields(err), "Name")
	})

	t.Run("malformed endpoint", func(t *testing.T) {
		p := &models.Provider{Name: "x", Endpoint: "ftp://x.example.com", Model: "m"}
		err := svc.Upsert(context.Background(), p)
		require.Error(t, err)
	})

	t.Run("negative priority", func(t *testing.T) {
		p := &models.Provider{Name: "x", Endpoint: "https://x.example.com", Model: "m", Priority: -1}
		err := svc.Upsert(context.Background(), p)
		require.Error(t, err)
		assert.True(t, utils.IsValidationError(err))
	})

	t.Run("invalid provider is not stored", func(t *testing.T) {
		assert.Empty(t, svc.List())
	})
}

func TestService_SetEnabled(t *testing.T) {
	svc := newService(t)
	p := models.NewProvider("alpha", "https://alpha.example.com", "", "model-a", 1)
	require.NoError(t, svc.Upsert(context.Background(), p))

	t.Run("disable removes from enabled list", func(t *testing.T) {
		require.NoError(t, svc.SetEnabled(context.Background(), p.ID, false))
		assert.Empty(t, svc.ListEnabled())
		assert.Len(t, svc.List(), 1, "disabled provider stays registered")
	})

	t.Run("re-enable restores", func(t *testing.T) {
		require.NoError(t, svc.SetEnabled(context.Background(), p.ID, true))
		assert.Len(t, svc.ListEnabled(), 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		err := svc.SetEnabled(context.Background(), uuid.New(), false)
		assert.ErrorIs(t, err, services.ErrProviderNotFound)
	})
}

func TestService_Get(t *testing.T) {
	svc := newService(t)
	p := models.NewProvider("alpha", "https://alpha.example.com", "", "model-a", 1)
	require.NoError(t, svc.Upsert(context.Background(), p))

	got, err := svc.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)

	_, err = svc.Get(uuid.New())
	assert.ErrorIs(t, err, services.ErrProviderNotFound)
}

func TestService_OnChange(t *testing.T) {
	svc := newService(t)

	changes := 0
	svc.OnChange(func() { changes++ })

	p := models.NewProvider("alpha", "https://alpha.example.com", "", "model-a", 1)
	require.NoError(t, svc.Upsert(context.Background(), p))
	require.NoError(t, svc.SetEnabled(context.Background(), p.ID, false))

	assert.Equal(t, 2, changes)
}
