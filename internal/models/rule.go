package models

import (
	"encoding/json"
	"time"
)

// Alert action kinds
const (
	ActionWebhook = "webhook"
	ActionSlack   = "slack"
	ActionEmail   = "email"
)

// Alert execution statuses
const (
	ExecutionSent   = "sent"
	ExecutionFailed = "failed"
)

// AlertRule defines a user-configured trigger on a tracked contract.
// The condition is a JSON tree evaluated against each ingested event.
type AlertRule struct {
	ID           int64           `json:"id" db:"id"`
	ContractID   int64           `json:"contract_id" db:"contract_id"`
	Name         string          `json:"name" db:"name"`
	Condition    json.RawMessage `json:"condition" db:"condition"`
	ActionType   string          `json:"action_type" db:"action_type"`
	ActionTarget string          `json:"action_target" db:"action_target"`
	Active       bool            `json:"active" db:"active"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// ValidActionType reports whether t is a supported action kind.
func ValidActionType(t string) bool {
	switch t {
	case ActionWebhook, ActionSlack, ActionEmail:
		return true
	}
	return false
}

// AlertExecution records one dispatch attempt for a rule/event pair.
// Rows are append-only; the pipeline never mutates or deletes them.
type AlertExecution struct {
	ID        int64     `json:"id" db:"id"`
	RuleID    int64     `json:"rule_id" db:"rule_id"`
	EventID   int64     `json:"event_id" db:"event_id"`
	Status    string    `json:"status" db:"status"`
	Response  string    `json:"response" db:"response"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
