// File: internal/alerting/matcher.go
package alerting

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/internal/metrics"
	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/pkg/utils"
)

// RuleStore is the persistence surface the matcher needs
type RuleStore interface {
	GetEvent(ctx context.Context, id int64) (*models.ContractEvent, error)
	GetActiveRules(ctx context.Context, contractID int64) ([]*models.AlertRule, error)
	GetContract(ctx context.Context, id int64) (*models.TrackedContract, error)
}

// Matcher evaluates active alert rules against ingested events
type Matcher struct {
	rules   RuleStore
	metrics *metrics.PrometheusMetrics
	logger  *logrus.Entry
}

// NewMatcher creates a rule matcher
func NewMatcher(rules RuleStore, m *metrics.PrometheusMetrics) *Matcher {
	return &Matcher{
		rules:   rules,
		metrics: m,
		logger:  utils.Component("matcher"),
	}
}

// MatchRules loads an event by id and reports how many active rules match
// it. An event that has vanished matches zero rules.
func (m *Matcher) MatchRules(ctx context.Context, eventID int64) (int, error) {
	event, err := m.rules.GetEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if event == nil {
		return 0, nil
	}

	matched, err := m.MatchEvent(ctx, event)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// MatchEvent returns the active rules of the event's contract whose
// conditions hold for the event payload. A rule with an unparseable
// condition never matches; it is logged and skipped rather than failing the
// batch.
func (m *Matcher) MatchEvent(ctx context.Context, event *models.ContractEvent) ([]*models.AlertRule, error) {
	rules, err := m.rules.GetActiveRules(ctx, event.ContractID)
	if err != nil {
		return nil, err
	}

	var matched []*models.AlertRule
	for _, rule := range rules {
		cond, err := ParseCondition(rule.Condition)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"rule_id": rule.ID,
				"error":   err.Error(),
			}).Warn("Skipping rule with invalid condition")
			continue
		}
		if Evaluate(cond, event.Payload) {
			matched = append(matched, rule)
		}
	}

	if m.metrics != nil && len(matched) > 0 {
		label := "unknown"
		if contract, err := m.rules.GetContract(ctx, event.ContractID); err == nil && contract != nil {
			label = utils.TruncateContractID(contract.ContractID)
		}
		m.metrics.RecordRulesMatched(label, len(matched))
	}

	m.logger.WithFields(logrus.Fields{
		"event_id": event.ID,
		"rules":    len(rules),
		"matched":  len(matched),
	}).Debug("Rule matching completed")

	return matched, nil
}
