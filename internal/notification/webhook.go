// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/pkg/utils"
)

// WebhookSender delivers alerts as HTTP POST requests to the rule target URL
type WebhookSender struct {
	httpClient *http.Client
	logger     *logrus.Entry
}

// WebhookPayload defines the webhook request body
type WebhookPayload struct {
	Alert     *Alert    `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(timeout time.Duration) *WebhookSender {
	return &WebhookSender{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: utils.Component("webhook_sender"),
	}
}

// Channel returns the channel name
func (ws *WebhookSender) Channel() string {
	return "webhook"
}

// Send posts the alert to the target URL and returns the response status and
// body excerpt for the execution log
func (ws *WebhookSender) Send(ctx context.Context, target string, alert *Alert) (string, error) {
	payload := &WebhookPayload{
		Alert:     alert,
		Timestamp: time.Now().UTC(),
		Source:    "soroscan",
		Version:   "1.0",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(jsonData))
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SoroScan/1.0")

	start := time.Now()
	resp, err := ws.httpClient.Do(req)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeExternal, "Failed to send webhook", err.Error())
	}
	defer resp.Body.Close()

	bodyBuffer := make([]byte, maxResponseLen)
	n, _ := resp.Body.Read(bodyBuffer)
	body := string(bodyBuffer[:n])

	ws.logger.WithFields(logrus.Fields{
		"url":         target,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Webhook delivered")

	result := fmt.Sprintf("status: %d", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, utils.NewAppError(utils.ErrCodeExternal,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, truncateResponse(body)))
	}

	return result, nil
}
