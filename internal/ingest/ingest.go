// File: internal/ingest/ingest.go
package ingest

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/internal/alerting"
	"github.com/soroscan/soroscan/internal/metrics"
	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/internal/scheduler"
	"github.com/soroscan/soroscan/pkg/utils"
)

// Stellar network passphrases recognized for the network metric label
const (
	testnetPassphrase = "Test SDF Network ; September 2015"
	mainnetPassphrase = "Public Global Stellar Network ; September 2015"
)

// NetworkLabel maps a network passphrase to a short metric label
func NetworkLabel(passphrase string) string {
	switch passphrase {
	case testnetPassphrase:
		return "testnet"
	case mainnetPassphrase:
		return "mainnet"
	default:
		return "unknown"
	}
}

// IngestStore is the persistence surface the ingestor needs
type IngestStore interface {
	GetContractByContractID(ctx context.Context, contractID string) (*models.TrackedContract, error)
	UpsertEvent(ctx context.Context, event *models.ContractEvent) (bool, error)
	CountActiveContracts(ctx context.Context) (int64, error)
}

// Ingestor writes contract events into storage with dedup and fans matched
// alerts out to the scheduler.
type Ingestor struct {
	store      IngestStore
	matcher    *alerting.Matcher
	dispatcher *alerting.Dispatcher
	scheduler  *scheduler.Scheduler
	metrics    *metrics.PrometheusMetrics
	logger     *logrus.Entry
	network    string
}

// NewIngestor creates an event ingestor
func NewIngestor(store IngestStore, matcher *alerting.Matcher, dispatcher *alerting.Dispatcher,
	sched *scheduler.Scheduler, m *metrics.PrometheusMetrics, networkPassphrase string) *Ingestor {
	return &Ingestor{
		store:      store,
		matcher:    matcher,
		dispatcher: dispatcher,
		scheduler:  sched,
		metrics:    m,
		logger:     utils.Component("ingest"),
		network:    NetworkLabel(networkPassphrase),
	}
}

// Upsert ingests one raw event for a tracked contract. Events without an
// index take fallbackIndex so siblings in the same ledger stay distinct.
// Re-delivery of the same (contract, ledger, event index) triple refreshes
// the stored row but does not count as a new event: the ingestion counter and
// alert matching fire only when a row is created.
func (i *Ingestor) Upsert(ctx context.Context, contractID string, raw *models.RawEvent, fallbackIndex int) (*models.ContractEvent, bool, error) {
	contract, err := i.store.GetContractByContractID(ctx, contractID)
	if err != nil {
		return nil, false, err
	}
	if contract == nil {
		return nil, false, utils.NewAppError(utils.ErrCodeNotFound, "Contract is not tracked", contractID)
	}
	if !contract.Active {
		return nil, false, utils.NewAppError(utils.ErrCodeValidation, "Contract tracking is disabled", contractID)
	}

	event := i.buildEvent(contract, raw, fallbackIndex)

	created, err := i.store.UpsertEvent(ctx, event)
	if err != nil {
		return nil, false, err
	}

	if created {
		if i.metrics != nil {
			i.metrics.RecordEventIngested(
				utils.TruncateContractID(contract.ContractID), i.network, event.EventType)
		}
		i.triggerAlerts(ctx, event)
	}

	i.logger.WithFields(logrus.Fields{
		"contract": utils.TruncateContractID(contract.ContractID),
		"ledger":   event.Ledger,
		"index":    event.EventIndex,
		"created":  created,
	}).Debug("Event upserted")

	return event, created, nil
}

// UpsertBatch ingests a batch of raw events and returns how many rows were
// created. Index-less events fall back to their batch position. The batch is
// not transactional: a failure reports how far it got.
func (i *Ingestor) UpsertBatch(ctx context.Context, contractID string, raws []*models.RawEvent) (int, error) {
	created := 0
	for idx, raw := range raws {
		_, wasCreated, err := i.Upsert(ctx, contractID, raw, idx)
		if err != nil {
			// Contract-level rejections apply to the whole batch; keep their code.
			if utils.IsCode(err, utils.ErrCodeNotFound) || utils.IsCode(err, utils.ErrCodeValidation) {
				return created, err
			}
			return created, utils.NewAppError(utils.ErrCodeProcessing,
				"Batch ingestion failed",
				fmt.Sprintf("event %d of %d: %s", idx+1, len(raws), err.Error()))
		}
		if wasCreated {
			created++
		}
	}
	return created, nil
}

// RefreshContractGauge updates the active contracts gauge from storage
func (i *Ingestor) RefreshContractGauge(ctx context.Context) error {
	count, err := i.store.CountActiveContracts(ctx)
	if err != nil {
		return err
	}
	if i.metrics != nil {
		i.metrics.UpdateActiveTrackedContracts(count)
	}
	return nil
}

func (i *Ingestor) buildEvent(contract *models.TrackedContract, raw *models.RawEvent, fallbackIndex int) *models.ContractEvent {
	eventIndex := fallbackIndex
	if raw.EventIndex != nil {
		eventIndex = *raw.EventIndex
	}

	eventType := raw.Type
	if eventType == "" {
		eventType = "unknown"
	}

	payload := raw.Value
	if payload == nil {
		payload = map[string]interface{}{}
	}

	return &models.ContractEvent{
		ContractID: contract.ID,
		EventType:  eventType,
		Payload:    payload,
		Ledger:     raw.Ledger,
		EventIndex: eventIndex,
		TxHash:     raw.TxHash,
		Timestamp:  raw.Timestamp,
		RawXDR:     raw.XDR,
	}
}

// triggerAlerts matches rules for a freshly created event and hands each
// match to the scheduler for detached delivery. Matching failures are logged
// and swallowed so ingestion never depends on the alert path.
func (i *Ingestor) triggerAlerts(ctx context.Context, event *models.ContractEvent) {
	if i.matcher == nil || i.dispatcher == nil {
		return
	}

	matched, err := i.matcher.MatchEvent(ctx, event)
	if err != nil {
		i.logger.WithError(err).Warn("Rule matching failed")
		return
	}

	for _, rule := range matched {
		ruleID, eventID := rule.ID, event.ID
		dispatch := func(taskCtx context.Context) error {
			_, err := i.dispatcher.Dispatch(taskCtx, ruleID, eventID)
			return err
		}

		if i.scheduler != nil {
			if err := i.scheduler.Submit("alert_dispatch", dispatch); err != nil {
				i.logger.WithFields(logrus.Fields{
					"rule_id":  ruleID,
					"event_id": eventID,
				}).Warn("Failed to enqueue alert dispatch")
			}
			continue
		}

		if err := dispatch(ctx); err != nil {
			i.logger.WithError(err).Warn("Inline alert dispatch failed")
		}
	}
}
