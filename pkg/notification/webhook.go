package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trustcompute/pkg/logger"
)

// WorkOrderNotification body posted to a work order's notifyUri
type WorkOrderNotification struct {
	WorkOrderID string `json:"workOrderId"`
	WorkerID    string `json:"workerId"`
	Status      string `json:"status"` // SUCCESS or FAILED
	CompletedAt int64  `json:"completedAt"`
}

// WebhookNotifier posts completion notifications to requester-supplied URIs
type WebhookNotifier struct {
	client *http.Client
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Deliverable reports whether notifyURI is an http(s) URL worth posting to.
// Requesters commonly send a single space when they do not want notifications.
func Deliverable(notifyURI string) bool {
	notifyURI = strings.TrimSpace(notifyURI)
	if notifyURI == "" {
		return false
	}
	u, err := url.Parse(notifyURI)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Send posts notification to notifyURI; undeliverable URIs are skipped
func (n *WebhookNotifier) Send(ctx context.Context, notifyURI string, notification *WorkOrderNotification) error {
	if !Deliverable(notifyURI) {
		logger.DebugCtx(ctx, "no deliverable notifyUri for work order %s, skipping notification", notification.WorkOrderID)
		return nil
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(notifyURI), bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify endpoint returned status code: %d", resp.StatusCode)
	}

	logger.InfoCtx(ctx, "completion notification sent for work order %s", notification.WorkOrderID)
	return nil
}
