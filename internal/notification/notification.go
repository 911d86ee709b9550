// File: internal/notification/notification.go
package notification

import (
	"context"
	"time"
)

// Alert is the payload delivered to a notification channel when a rule fires
type Alert struct {
	RuleID     int64                  `json:"rule_id"`
	RuleName   string                 `json:"rule_name"`
	ContractID string                 `json:"contract_id"`
	EventType  string                 `json:"event_type"`
	Ledger     uint64                 `json:"ledger"`
	TxHash     string                 `json:"tx_hash"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  *time.Time             `json:"timestamp,omitempty"`
}

// Sender delivers alerts over one channel. Send returns a short description
// of the channel response for the execution log.
type Sender interface {
	Send(ctx context.Context, target string, alert *Alert) (string, error)
	Channel() string
}

// maxResponseLen bounds what gets stored in the execution log
const maxResponseLen = 512

func truncateResponse(s string) string {
	if len(s) > maxResponseLen {
		return s[:maxResponseLen]
	}
	return s
}
