// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to connect to PostgreSQL", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// SaveContract inserts a tracked contract
func (s *PostgreSQLStorage) SaveContract(ctx context.Context, contract *models.TrackedContract) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO contracts (contract_id, name, owner, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		contract.ContractID, contract.Name, contract.Owner, contract.Active, now, now).
		Scan(&contract.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save contract", err.Error())
	}
	contract.CreatedAt = now
	contract.UpdatedAt = now

	return nil
}

// GetContract retrieves a tracked contract by primary key
func (s *PostgreSQLStorage) GetContract(ctx context.Context, id int64) (*models.TrackedContract, error) {
	query := `
		SELECT id, contract_id, name, owner, active, created_at, updated_at
		FROM contracts WHERE id = $1
	`
	return s.scanContract(s.db.QueryRowContext(ctx, query, id))
}

// GetContractByContractID retrieves a tracked contract by its on-chain identifier
func (s *PostgreSQLStorage) GetContractByContractID(ctx context.Context, contractID string) (*models.TrackedContract, error) {
	query := `
		SELECT id, contract_id, name, owner, active, created_at, updated_at
		FROM contracts WHERE contract_id = $1
	`
	return s.scanContract(s.db.QueryRowContext(ctx, query, contractID))
}

func (s *PostgreSQLStorage) scanContract(row *sql.Row) (*models.TrackedContract, error) {
	var contract models.TrackedContract
	err := row.Scan(&contract.ID, &contract.ContractID, &contract.Name,
		&contract.Owner, &contract.Active, &contract.CreatedAt, &contract.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get contract", err.Error())
	}
	return &contract, nil
}

// GetContracts retrieves tracked contracts, optionally filtered by active flag
func (s *PostgreSQLStorage) GetContracts(ctx context.Context, active *bool) ([]*models.TrackedContract, error) {
	query := `
		SELECT id, contract_id, name, owner, active, created_at, updated_at
		FROM contracts
	`
	args := []interface{}{}
	if active != nil {
		query += " WHERE active = $1"
		args = append(args, *active)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get contracts", err.Error())
	}
	defer rows.Close()

	var contracts []*models.TrackedContract
	for rows.Next() {
		var contract models.TrackedContract
		if err := rows.Scan(&contract.ID, &contract.ContractID, &contract.Name,
			&contract.Owner, &contract.Active, &contract.CreatedAt, &contract.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan contract", err.Error())
		}
		contracts = append(contracts, &contract)
	}
	return contracts, rows.Err()
}

// UpdateContract updates a tracked contract
func (s *PostgreSQLStorage) UpdateContract(ctx context.Context, contract *models.TrackedContract) error {
	query := `
		UPDATE contracts SET name = $1, owner = $2, active = $3, updated_at = $4
		WHERE id = $5
	`
	contract.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		contract.Name, contract.Owner, contract.Active, contract.UpdatedAt, contract.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update contract", err.Error())
	}
	return nil
}

// CountActiveContracts returns the number of active tracked contracts
func (s *PostgreSQLStorage) CountActiveContracts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contracts WHERE active = TRUE").Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count active contracts", err.Error())
	}
	return count, nil
}

// UpsertEvent atomically inserts or updates an event keyed on the unique
// (contract_id, ledger, event_index) triple. The xmax system column
// distinguishes a fresh insert from a conflict update in one round trip.
func (s *PostgreSQLStorage) UpsertEvent(ctx context.Context, event *models.ContractEvent) (bool, error) {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal event payload", err.Error())
	}

	var timestamp sql.NullTime
	if event.Timestamp != nil {
		timestamp = sql.NullTime{Time: *event.Timestamp, Valid: true}
	}

	query := `
		INSERT INTO events (contract_id, event_type, payload, ledger, event_index, tx_hash, timestamp, raw_xdr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (contract_id, ledger, event_index) DO UPDATE SET
			event_type = EXCLUDED.event_type,
			payload = EXCLUDED.payload,
			tx_hash = EXCLUDED.tx_hash,
			timestamp = EXCLUDED.timestamp,
			raw_xdr = EXCLUDED.raw_xdr
		RETURNING id, created_at, (xmax = 0)
	`

	var created bool
	err = s.db.QueryRowContext(ctx, query,
		event.ContractID, event.EventType, string(payloadJSON),
		event.Ledger, event.EventIndex, event.TxHash, timestamp, event.RawXDR).
		Scan(&event.ID, &event.CreatedAt, &created)
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert event", err.Error())
	}

	return created, nil
}

// GetEvent retrieves a single event by ID
func (s *PostgreSQLStorage) GetEvent(ctx context.Context, id int64) (*models.ContractEvent, error) {
	query := `
		SELECT id, contract_id, event_type, payload, ledger, event_index, tx_hash, timestamp, raw_xdr, created_at
		FROM events WHERE id = $1
	`

	row := s.db.QueryRowContext(ctx, query, id)
	return scanEvent(row.Scan)
}

// SearchEvents retrieves events matching the filter along with the total count
func (s *PostgreSQLStorage) SearchEvents(ctx context.Context, filter models.EventFilter) ([]*models.ContractEvent, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ContractID != nil {
		where += " AND e.contract_id = (SELECT id FROM contracts WHERE contract_id = " + arg(*filter.ContractID) + ")"
	}
	if filter.EventType != nil {
		where += " AND e.event_type = " + arg(*filter.EventType)
	}
	if filter.FromLedger != nil {
		where += " AND e.ledger >= " + arg(*filter.FromLedger)
	}
	if filter.ToLedger != nil {
		where += " AND e.ledger <= " + arg(*filter.ToLedger)
	}
	if filter.PayloadContains != "" {
		where += " AND e.payload::text LIKE " + arg("%"+filter.PayloadContains+"%")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM events e" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}

	query := `
		SELECT e.id, e.contract_id, e.event_type, e.payload, e.ledger, e.event_index, e.tx_hash, e.timestamp, e.raw_xdr, e.created_at
		FROM events e` + where + " ORDER BY e.ledger DESC, e.event_index DESC"

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to search events", err.Error())
	}
	defer rows.Close()

	var events []*models.ContractEvent
	for rows.Next() {
		event, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}
	return events, total, rows.Err()
}

// SaveRule inserts an alert rule
func (s *PostgreSQLStorage) SaveRule(ctx context.Context, rule *models.AlertRule) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO alert_rules (contract_id, name, condition, action_type, action_target, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		rule.ContractID, rule.Name, string(rule.Condition),
		rule.ActionType, rule.ActionTarget, rule.Active, now).
		Scan(&rule.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save alert rule", err.Error())
	}
	rule.CreatedAt = now

	return nil
}

// GetRule retrieves an alert rule by ID
func (s *PostgreSQLStorage) GetRule(ctx context.Context, id int64) (*models.AlertRule, error) {
	query := `
		SELECT id, contract_id, name, condition, action_type, action_target, active, created_at
		FROM alert_rules WHERE id = $1
	`

	var rule models.AlertRule
	var condition string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rule.ID, &rule.ContractID,
		&rule.Name, &condition, &rule.ActionType, &rule.ActionTarget, &rule.Active, &rule.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get alert rule", err.Error())
	}
	rule.Condition = json.RawMessage(condition)

	return &rule, nil
}

// GetActiveRules retrieves active alert rules scoped to a contract
func (s *PostgreSQLStorage) GetActiveRules(ctx context.Context, contractID int64) ([]*models.AlertRule, error) {
	query := `
		SELECT id, contract_id, name, condition, action_type, action_target, active, created_at
		FROM alert_rules WHERE contract_id = $1 AND active = TRUE
		ORDER BY created_at
	`
	return s.queryRules(ctx, query, contractID)
}

// GetRules retrieves alert rules, optionally scoped to a contract
func (s *PostgreSQLStorage) GetRules(ctx context.Context, contractID *int64) ([]*models.AlertRule, error) {
	query := `
		SELECT id, contract_id, name, condition, action_type, action_target, active, created_at
		FROM alert_rules
	`
	args := []interface{}{}
	if contractID != nil {
		query += " WHERE contract_id = $1"
		args = append(args, *contractID)
	}
	query += " ORDER BY created_at DESC"
	return s.queryRules(ctx, query, args...)
}

func (s *PostgreSQLStorage) queryRules(ctx context.Context, query string, args ...interface{}) ([]*models.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get alert rules", err.Error())
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		var rule models.AlertRule
		var condition string
		if err := rows.Scan(&rule.ID, &rule.ContractID, &rule.Name, &condition,
			&rule.ActionType, &rule.ActionTarget, &rule.Active, &rule.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan alert rule", err.Error())
		}
		rule.Condition = json.RawMessage(condition)
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// UpdateRule updates an alert rule
func (s *PostgreSQLStorage) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	query := `
		UPDATE alert_rules SET name = $1, condition = $2, action_type = $3, action_target = $4, active = $5
		WHERE id = $6
	`
	_, err := s.db.ExecContext(ctx, query,
		rule.Name, string(rule.Condition), rule.ActionType, rule.ActionTarget, rule.Active, rule.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update alert rule", err.Error())
	}
	return nil
}

// DeleteRule deletes an alert rule
func (s *PostgreSQLStorage) DeleteRule(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = $1", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete alert rule", err.Error())
	}
	return nil
}

// SaveExecution appends an alert execution record
func (s *PostgreSQLStorage) SaveExecution(ctx context.Context, execution *models.AlertExecution) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO alert_executions (rule_id, event_id, status, response, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		execution.RuleID, execution.EventID, execution.Status, execution.Response, now).
		Scan(&execution.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save alert execution", err.Error())
	}
	execution.CreatedAt = now

	return nil
}

// GetExecutions retrieves recent executions for a rule
func (s *PostgreSQLStorage) GetExecutions(ctx context.Context, ruleID int64, limit int) ([]*models.AlertExecution, error) {
	query := `
		SELECT id, rule_id, event_id, status, response, created_at
		FROM alert_executions WHERE rule_id = $1
		ORDER BY created_at DESC LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, ruleID, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get alert executions", err.Error())
	}
	defer rows.Close()

	var executions []*models.AlertExecution
	for rows.Next() {
		var execution models.AlertExecution
		if err := rows.Scan(&execution.ID, &execution.RuleID, &execution.EventID,
			&execution.Status, &execution.Response, &execution.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan alert execution", err.Error())
		}
		executions = append(executions, &execution)
	}
	return executions, rows.Err()
}

// CountExecutions returns the total number of execution records
func (s *PostgreSQLStorage) CountExecutions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_executions").Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count alert executions", err.Error())
	}
	return count, nil
}

// SaveAPIKey inserts an API key
func (s *PostgreSQLStorage) SaveAPIKey(ctx context.Context, key *models.APIKey) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO api_keys (owner, name, key, tier, quota_per_hour, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query,
		key.Owner, key.Name, key.Key, key.Tier, key.QuotaPerHour, key.Active, now).
		Scan(&key.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save API key", err.Error())
	}
	key.CreatedAt = now

	return nil
}

// GetActiveAPIKey retrieves an active API key by its secret token
func (s *PostgreSQLStorage) GetActiveAPIKey(ctx context.Context, token string) (*models.APIKey, error) {
	query := `
		SELECT id, owner, name, key, tier, quota_per_hour, active, last_used_at, created_at
		FROM api_keys WHERE key = $1 AND active = TRUE
	`

	var key models.APIKey
	var lastUsed sql.NullTime
	err := s.db.QueryRowContext(ctx, query, token).Scan(&key.ID, &key.Owner, &key.Name,
		&key.Key, &key.Tier, &key.QuotaPerHour, &key.Active, &lastUsed, &key.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get API key", err.Error())
	}
	if lastUsed.Valid {
		key.LastUsedAt = &lastUsed.Time
	}

	return &key, nil
}

// GetAPIKeys retrieves API keys for an owner
func (s *PostgreSQLStorage) GetAPIKeys(ctx context.Context, owner string) ([]*models.APIKey, error) {
	query := `
		SELECT id, owner, name, key, tier, quota_per_hour, active, last_used_at, created_at
		FROM api_keys WHERE owner = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get API keys", err.Error())
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var key models.APIKey
		var lastUsed sql.NullTime
		if err := rows.Scan(&key.ID, &key.Owner, &key.Name, &key.Key, &key.Tier,
			&key.QuotaPerHour, &key.Active, &lastUsed, &key.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan API key", err.Error())
		}
		if lastUsed.Valid {
			key.LastUsedAt = &lastUsed.Time
		}
		keys = append(keys, &key)
	}
	return keys, rows.Err()
}

// RevokeAPIKey marks an API key inactive; history is preserved
func (s *PostgreSQLStorage) RevokeAPIKey(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE api_keys SET active = FALSE WHERE id = $1", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to revoke API key", err.Error())
	}
	return nil
}

// TouchAPIKey updates the last-used timestamp of an API key
func (s *PostgreSQLStorage) TouchAPIKey(ctx context.Context, id int64, usedAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = $1 WHERE id = $2", usedAt, id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to touch API key", err.Error())
	}
	return nil
}

// SaveContractQuota inserts or replaces a contract-level quota override after
// validating it against the owning key's tier ceiling
func (s *PostgreSQLStorage) SaveContractQuota(ctx context.Context, quota *models.ContractQuota) error {
	var key models.APIKey
	err := s.db.QueryRowContext(ctx,
		"SELECT id, tier, quota_per_hour FROM api_keys WHERE id = $1", quota.APIKeyID).
		Scan(&key.ID, &key.Tier, &key.QuotaPerHour)
	if err != nil {
		if err == sql.ErrNoRows {
			return utils.NewAppError(utils.ErrCodeNotFound, "API key not found")
		}
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to load API key", err.Error())
	}

	if err := checkQuotaOverride(&key, quota.QuotaPerHour); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO contract_quotas (contract_id, api_key_id, quota_per_hour, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (contract_id, api_key_id) DO UPDATE SET quota_per_hour = EXCLUDED.quota_per_hour
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		quota.ContractID, quota.APIKeyID, quota.QuotaPerHour, now).
		Scan(&quota.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save contract quota", err.Error())
	}
	quota.CreatedAt = now

	return nil
}

// GetContractQuota retrieves a quota override for a key/contract pair, nil
// when no override exists
func (s *PostgreSQLStorage) GetContractQuota(ctx context.Context, apiKeyID int64, contractID string) (*int, error) {
	query := `
		SELECT cq.quota_per_hour
		FROM contract_quotas cq
		JOIN contracts c ON c.id = cq.contract_id
		WHERE cq.api_key_id = $1 AND c.contract_id = $2
	`

	var quota int
	err := s.db.QueryRowContext(ctx, query, apiKeyID, contractID).Scan(&quota)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get contract quota", err.Error())
	}
	return &quota, nil
}
