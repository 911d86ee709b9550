// File: internal/alerting/dispatcher.go
package alerting

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/internal/metrics"
	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/internal/notification"
	"github.com/soroscan/soroscan/pkg/utils"
)

// Dispatch outcomes. Skips record why nothing was delivered; they leave no
// execution record because there is no rule or event row to anchor one.
const (
	OutcomeSent             = "sent"
	OutcomeFailed           = "failed"
	OutcomeSkippedRuleGone  = "skipped:rule_gone"
	OutcomeSkippedEventGone = "skipped:event_gone"
)

// DispatchStore is the persistence surface the dispatcher needs
type DispatchStore interface {
	GetRule(ctx context.Context, id int64) (*models.AlertRule, error)
	GetEvent(ctx context.Context, id int64) (*models.ContractEvent, error)
	GetContract(ctx context.Context, id int64) (*models.TrackedContract, error)
	SaveExecution(ctx context.Context, execution *models.AlertExecution) error
}

// Dispatcher delivers a matched rule's alert over its configured channel.
// Dispatch runs detached from matching (typically on a worker), so the rule
// and event are re-fetched by ID and may have disappeared in between.
type Dispatcher struct {
	store   DispatchStore
	senders map[string]notification.Sender
	metrics *metrics.PrometheusMetrics
	logger  *logrus.Entry
	timeout time.Duration
}

// NewDispatcher creates an alert dispatcher
func NewDispatcher(store DispatchStore, senders []notification.Sender, m *metrics.PrometheusMetrics, timeout time.Duration) *Dispatcher {
	byChannel := make(map[string]notification.Sender, len(senders))
	for _, sender := range senders {
		byChannel[sender.Channel()] = sender
	}

	return &Dispatcher{
		store:   store,
		senders: byChannel,
		metrics: m,
		logger:  utils.Component("dispatcher"),
		timeout: timeout,
	}
}

// Dispatch loads the rule and event, delivers the alert, and appends exactly
// one execution record for every non-skipped call. The returned outcome is
// one of the Outcome constants; the error reports storage failures only, a
// delivery failure is a "failed" outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, ruleID, eventID int64) (string, error) {
	rule, err := d.store.GetRule(ctx, ruleID)
	if err != nil {
		return "", err
	}
	if rule == nil || !rule.Active {
		d.logger.WithField("rule_id", ruleID).Debug("Rule gone, skipping dispatch")
		return OutcomeSkippedRuleGone, nil
	}

	event, err := d.store.GetEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	if event == nil {
		d.logger.WithField("event_id", eventID).Debug("Event gone, skipping dispatch")
		return OutcomeSkippedEventGone, nil
	}

	alert := d.buildAlert(ctx, rule, event)

	start := time.Now()
	outcome, response := d.deliver(ctx, rule, alert)
	duration := time.Since(start)

	execution := &models.AlertExecution{
		RuleID:   rule.ID,
		EventID:  event.ID,
		Status:   outcome,
		Response: response,
	}
	if err := d.store.SaveExecution(ctx, execution); err != nil {
		return "", err
	}

	if d.metrics != nil {
		d.metrics.RecordAlertDispatched(rule.ActionType, outcome, duration)
	}

	d.logger.WithFields(logrus.Fields{
		"rule_id":     rule.ID,
		"event_id":    event.ID,
		"channel":     rule.ActionType,
		"outcome":     outcome,
		"duration_ms": duration.Milliseconds(),
	}).Info("Alert dispatched")

	return outcome, nil
}

func (d *Dispatcher) deliver(ctx context.Context, rule *models.AlertRule, alert *notification.Alert) (outcome, response string) {
	sender, ok := d.senders[rule.ActionType]
	if !ok {
		return OutcomeFailed, "unknown action type: " + rule.ActionType
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	response, err := sender.Send(sendCtx, rule.ActionTarget, alert)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"rule_id": rule.ID,
			"channel": rule.ActionType,
			"error":   err.Error(),
		}).Warn("Alert delivery failed")
		return OutcomeFailed, err.Error()
	}
	return OutcomeSent, response
}

func (d *Dispatcher) buildAlert(ctx context.Context, rule *models.AlertRule, event *models.ContractEvent) *notification.Alert {
	contractID := "unknown"
	if contract, err := d.store.GetContract(ctx, event.ContractID); err == nil && contract != nil {
		contractID = contract.ContractID
	}

	return &notification.Alert{
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		ContractID: contractID,
		EventType:  event.EventType,
		Ledger:     event.Ledger,
		TxHash:     event.TxHash,
		Payload:    event.Payload,
		Timestamp:  event.Timestamp,
	}
}
