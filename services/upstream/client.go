// Package upstream performs the actual provider calls. The call is treated
// as opaque: a chat-style request goes out, and what comes back is reduced
// to content, token counts, and cost.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
	"github.com/llmops/provider-orchestrator/services"
)

// maxResponseBody bounds how much of an upstream response is read.
const maxResponseBody = 1 << 20

// Request is the opaque payload sent to a provider.
type Request struct {
	Message   string `json:"message"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Response is the reduced view of a provider reply.
type Response struct {
	Content   string  `json:"content"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	Cost      float64 `json:"cost"`
}

// Caller performs a single provider call. Implementations must honor the
// context deadline.
type Caller interface {
	Call(ctx context.Context, provider models.Provider, req Request) (*Response, error)
}

// wireRequest is the JSON body sent to the provider endpoint.
type wireRequest struct {
	Model     string `json:"model"`
	Message   string `json:"message"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// wireResponse covers the common chat-completion reply shape. Providers
// that report cost directly do so in the top-level cost field; otherwise
// cost stays 0 and only token counts feed the optimizer.
type wireResponse struct {
	Content string `json:"content"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Cost float64 `json:"cost"`
}

// HTTPCaller calls providers over HTTP with a bearer credential.
type HTTPCaller struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPCaller creates an HTTP caller. Per-call deadlines come from the
// context; the client itself carries no timeout so callers stay in control.
func NewHTTPCaller(logger *zap.Logger) *HTTPCaller {
	return &HTTPCaller{
		client: &http.Client{},
		logger: logger,
	}
}

// Call sends one chat-style request to the provider endpoint.
func (c *HTTPCaller) Call(ctx context.Context, provider models.Provider, req Request) (*Response, error) {
	body, err := json.Marshal(wireRequest{
		Model:     provider.Model,
		Message:   req.Message,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, services.WrapUpstream("failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.WrapUpstream("failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if provider.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+provider.Credential)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, services.NewDomainError(services.ErrorTypeUpstream,
				fmt.Sprintf("call to %s timed out after %s", provider.Name, time.Since(start).Round(time.Millisecond)), err)
		}
		return nil, services.WrapUpstream(fmt.Sprintf("call to %s failed", provider.Name), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, services.WrapUpstream(fmt.Sprintf("failed to read response from %s", provider.Name), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.NewDomainError(services.ErrorTypeUpstream,
			fmt.Sprintf("%s returned status %d", provider.Name, resp.StatusCode), nil).
			WithDetail("status", resp.StatusCode)
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, services.WrapUpstream(fmt.Sprintf("failed to decode response from %s", provider.Name), err)
	}

	content := wire.Content
	if content == "" && len(wire.Choices) > 0 {
		content = wire.Choices[0].Message.Content
	}

	return &Response{
		Content:   content,
		TokensIn:  wire.Usage.PromptTokens,
		TokensOut: wire.Usage.CompletionTokens,
		Cost:      wire.Cost,
	}, nil
}
