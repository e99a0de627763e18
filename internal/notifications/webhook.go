// Package notifications pushes transfer events to an external webhook, the
// stand-in for the notification service that consumes completed transfers.
package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"funds-transfer/internal/domain"
)

type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier returns nil when no URL is configured; callers treat a
// nil notifier as disabled.
func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	if url == "" {
		return nil
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

type transferEvent struct {
	Event       string              `json:"event"`
	Transaction *domain.Transaction `json:"transaction"`
}

// NotifyTransferCompleted is fire-and-forget: delivery failure is logged and
// never affects the transfer outcome.
func (n *WebhookNotifier) NotifyTransferCompleted(tx *domain.Transaction) {
	if n == nil {
		return
	}

	go func() {
		if err := n.send(transferEvent{Event: "transfer.completed", Transaction: tx}); err != nil {
			n.logger.Warn("Webhook delivery failed", "transaction_id", tx.ID, "error", err)
		}
	}()
}

func (n *WebhookNotifier) send(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "funds-transfer-webhook/1.0")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
