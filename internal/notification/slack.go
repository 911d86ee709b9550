// File: internal/notification/slack.go
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

// SlackSender delivers alerts to a Slack incoming webhook URL
type SlackSender struct {
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewSlackSender creates a new Slack sender
func NewSlackSender(timeout time.Duration) *SlackSender {
	return &SlackSender{
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.Component("slack_sender"),
	}
}

// Channel returns the channel name
func (ss *SlackSender) Channel() string {
	return "slack"
}

// Send posts a formatted message to the Slack webhook
func (ss *SlackSender) Send(ctx context.Context, target string, alert *Alert) (string, error) {
	message := fmt.Sprintf(":rotating_light: *%s*\nContract `%s` emitted `%s` at ledger %d\nTx: `%s`",
		alert.RuleName, alert.ContractID, alert.EventType, alert.Ledger, alert.TxHash)

	payload := map[string]string{"text": message}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal Slack payload", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(jsonData))
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeInternal, "Failed to create Slack request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ss.httpClient.Do(req)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeExternal, "Failed to send Slack message", err.Error())
	}
	defer resp.Body.Close()

	result := fmt.Sprintf("status: %d", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, utils.NewAppError(utils.ErrCodeExternal,
			"Slack returned non-success status",
			fmt.Sprintf("status: %d", resp.StatusCode))
	}

	ss.logger.WithField("rule", alert.RuleName).Debug("Slack message delivered")
	return result, nil
}
