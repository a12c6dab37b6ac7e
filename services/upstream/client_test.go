package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services"
)

func testProvider(endpoint string) models.Provider {
	return models.Provider{
		Name:       "test",
		Endpoint:   endpoint,
		Credential: "secret-token",
		Model:      "test-model",
	}
}

func TestHTTPCaller_Call(t *testing.T) {
	logger := zap.NewNop()

	t.Run("successful call parses usage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "test-model", body["model"])
			assert.Equal(t, "hello", body["message"])

			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"content": "hi there",
				"usage":   map[string]int{"prompt_tokens": 3, "completion_tokens": 7},
				"cost":    0.0004,
			})
		}))
		defer srv.Close()

		caller := NewHTTPCaller(logger)
		resp, err := caller.Call(context.Background(), testProvider(srv.URL), Request{Message: "hello"})
		require.NoError(t, err)

		assert.Equal(t, "hi there", resp.Content)
		assert.Equal(t, 3, resp.TokensIn)
		assert.Equal(t, 7, resp.TokensOut)
		assert.InDelta(t, 0.0004, resp.Cost, 1e-9)
	})

	t.Run("chat completion shape is accepted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"from choices"}}],"usage":{"prompt_tokens":1,"completion_tokens":2}}`))
		}))
		defer srv.Close()

		caller := NewHTTPCaller(logger)
		resp, err := caller.Call(context.Background(), testProvider(srv.URL), Request{Message: "hello"})
		require.NoError(t, err)
		assert.Equal(t, "from choices", resp.Content)
	})

	t.Run("non-2xx status is an upstream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		caller := NewHTTPCaller(logger)
		_, err := caller.Call(context.Background(), testProvider(srv.URL), Request{Message: "hello"})
		require.Error(t, err)
		assert.True(t, services.IsUpstreamError(err))
		assert.Equal(t, http.StatusTooManyRequests, services.GetErrorDetails(err)["status"])
	})

	t.Run("deadline expiry is an upstream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		caller := NewHTTPCaller(logger)
		_, err := caller.Call(ctx, testProvider(srv.URL), Request{Message: "hello"})
		require.Error(t, err)
		assert.True(t, services.IsUpstreamError(err))
	})

	t.Run("malformed response body is an upstream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>not json</html>"))
		}))
		defer srv.Close()

		caller := NewHTTPCaller(logger)
		_, err := caller.Call(context.Background(), testProvider(srv.URL), Request{Message: "hello"})
		require.Error(t, err)
		assert.True(t, services.IsUpstreamError(err))
	})
}
