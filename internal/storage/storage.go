// File: internal/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/pkg/utils"
)

// Storage defines the interface for SoroScan persistence operations
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Tracked contract operations
	SaveContract(ctx context.Context, contract *models.TrackedContract) error
	GetContract(ctx context.Context, id int64) (*models.TrackedContract, error)
	GetContractByContractID(ctx context.Context, contractID string) (*models.TrackedContract, error)
	GetContracts(ctx context.Context, active *bool) ([]*models.TrackedContract, error)
	UpdateContract(ctx context.Context, contract *models.TrackedContract) error
	CountActiveContracts(ctx context.Context) (int64, error)

	// Event operations. UpsertEvent performs an atomic insert-or-update keyed
	// on the unique (contract_id, ledger, event_index) triple and reports
	// whether a new row was created.
	UpsertEvent(ctx context.Context, event *models.ContractEvent) (bool, error)
	GetEvent(ctx context.Context, id int64) (*models.ContractEvent, error)
	SearchEvents(ctx context.Context, filter models.EventFilter) ([]*models.ContractEvent, int64, error)

	// Alert rule operations
	SaveRule(ctx context.Context, rule *models.AlertRule) error
	GetRule(ctx context.Context, id int64) (*models.AlertRule, error)
	GetActiveRules(ctx context.Context, contractID int64) ([]*models.AlertRule, error)
	GetRules(ctx context.Context, contractID *int64) ([]*models.AlertRule, error)
	UpdateRule(ctx context.Context, rule *models.AlertRule) error
	DeleteRule(ctx context.Context, id int64) error

	// Alert execution log (append-only)
	SaveExecution(ctx context.Context, execution *models.AlertExecution) error
	GetExecutions(ctx context.Context, ruleID int64, limit int) ([]*models.AlertExecution, error)
	CountExecutions(ctx context.Context) (int64, error)

	// API key operations
	SaveAPIKey(ctx context.Context, key *models.APIKey) error
	GetActiveAPIKey(ctx context.Context, token string) (*models.APIKey, error)
	GetAPIKeys(ctx context.Context, owner string) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id int64) error
	TouchAPIKey(ctx context.Context, id int64, usedAt time.Time) error

	// Contract quota overrides
	SaveContractQuota(ctx context.Context, quota *models.ContractQuota) error
	GetContractQuota(ctx context.Context, apiKeyID int64, contractID string) (*int, error)
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"` // sqlite, postgres
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// checkQuotaOverride validates a contract-level quota override against the
// owning key's tier ceiling. Overrides can only tighten, never loosen, the
// tier quota; enterprise keys are exempt. Rejected at write time, never
// silently clamped.
func checkQuotaOverride(key *models.APIKey, quotaPerHour int) error {
	if quotaPerHour <= 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "Contract quota must be positive")
	}
	if key.Tier == models.TierEnterprise {
		return nil
	}
	if quotaPerHour > key.QuotaPerHour {
		return utils.NewAppError(utils.ErrCodeValidation,
			"Contract quota exceeds key tier limit",
			fmt.Sprintf("override %d > tier quota %d", quotaPerHour, key.QuotaPerHour))
	}
	return nil
}
