package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/llmops/provider-orchestrator/models"
)

// Notifier delivers a fired alert to one channel. Delivery failures are
// logged by the engine and never block evaluation.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert models.Alert) error
}

// LogNotifier writes alerts to the application log. It is always
// registered under the "log" channel name.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-channel notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, alert models.Alert) error {
	n.logger.Warn("ALERT",
		zap.String("severity", string(alert.Severity)),
		zap.String("condition", string(alert.Condition)),
		zap.String("provider_id", alert.ProviderID.String()),
		zap.String("message", alert.Message))
	return nil
}

// WebhookNotifier POSTs alerts as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier creates a webhook-channel notifier.
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, alert models.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
