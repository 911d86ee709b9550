// File: internal/sync/syncer.go
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/internal/ingest"
	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/internal/scheduler"
	"github.com/soroscan/soroscan/pkg/utils"
)

// EventSource fetches contract events from the network
type EventSource interface {
	GetEvents(ctx context.Context, contractID string, startLedger uint64, limit int) ([]*models.RawEvent, uint64, error)
	GetLatestLedger(ctx context.Context) (uint64, error)
}

// ContractLister enumerates the contracts to poll
type ContractLister interface {
	GetContracts(ctx context.Context, active *bool) ([]*models.TrackedContract, error)
}

// SyncerConfig holds sync loop settings
type SyncerConfig struct {
	Interval    time.Duration `json:"interval"`
	BatchSize   int           `json:"batch_size"`
	StartLedger uint64        `json:"start_ledger"`
}

// Syncer periodically polls the RPC node for new events of every active
// contract and feeds them through the ingestor. Cursors are per contract and
// in-memory: a restart re-fetches from the configured start ledger and relies
// on upsert dedup to make that harmless.
type Syncer struct {
	config    *SyncerConfig
	source    EventSource
	contracts ContractLister
	ingestor  *ingest.Ingestor
	logger    *logrus.Entry

	mu      stdsync.Mutex
	cursors map[string]uint64
}

// NewSyncer creates a contract event syncer
func NewSyncer(config *SyncerConfig, source EventSource, contracts ContractLister, ingestor *ingest.Ingestor) *Syncer {
	return &Syncer{
		config:    config,
		source:    source,
		contracts: contracts,
		ingestor:  ingestor,
		logger:    utils.Component("syncer"),
		cursors:   make(map[string]uint64),
	}
}

// Register schedules the periodic sync task
func (s *Syncer) Register(sched *scheduler.Scheduler) {
	sched.Every(s.config.Interval, "contract_sync", s.Run)
}

// Run performs one sync pass over all active contracts. One contract failing
// does not stop the others; the pass reports the last error seen.
func (s *Syncer) Run(ctx context.Context) error {
	active := true
	contracts, err := s.contracts.GetContracts(ctx, &active)
	if err != nil {
		return err
	}

	var lastErr error
	for _, contract := range contracts {
		if err := s.syncContract(ctx, contract); err != nil {
			s.logger.WithFields(logrus.Fields{
				"contract": utils.TruncateContractID(contract.ContractID),
				"error":    err.Error(),
			}).Warn("Contract sync failed")
			lastErr = err
		}
	}

	if err := s.ingestor.RefreshContractGauge(ctx); err != nil {
		s.logger.WithError(err).Debug("Failed to refresh contract gauge")
	}

	return lastErr
}

func (s *Syncer) syncContract(ctx context.Context, contract *models.TrackedContract) error {
	start := s.cursor(contract.ContractID)

	raws, latestLedger, err := s.source.GetEvents(ctx, contract.ContractID, start, s.config.BatchSize)
	if err != nil {
		return err
	}

	created, err := s.ingestor.UpsertBatch(ctx, contract.ContractID, raws)
	if err != nil {
		return err
	}

	if latestLedger > 0 {
		s.setCursor(contract.ContractID, latestLedger+1)
	}

	if created > 0 {
		s.logger.WithFields(logrus.Fields{
			"contract": utils.TruncateContractID(contract.ContractID),
			"fetched":  len(raws),
			"created":  created,
			"cursor":   latestLedger + 1,
		}).Info("Contract events synced")
	}

	return nil
}

func (s *Syncer) cursor(contractID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cursor, ok := s.cursors[contractID]; ok {
		return cursor
	}
	return s.config.StartLedger
}

func (s *Syncer) setCursor(contractID string, ledger uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[contractID] = ledger
}
