// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/soroscan/soroscan/internal/models"
	"github.com/soroscan/soroscan/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
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
func (s *SQLiteStorage) SaveContract(ctx context.Context, contract *models.TrackedContract) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO contracts (contract_id, name, owner, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		contract.ContractID, contract.Name, contract.Owner, contract.Active, now, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save contract", err.Error())
	}

	id, err := res.LastInsertId()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read contract id", err.Error())
	}
	contract.ID = id
	contract.CreatedAt = now
	contract.UpdatedAt = now

	return nil
}

// GetContract retrieves a tracked contract by primary key
func (s *SQLiteStorage) GetContract(ctx context.Context, id int64) (*models.TrackedContract, error) {
	query := `
		SELECT id, contract_id, name, owner, active, created_at, updated_at
		FROM contracts WHERE id = ?
	`
	return s.scanContract(s.db.QueryRowContext(ctx, query, id))
}

// GetContractByContractID retrieves a tracked contract by its on-chain identifier
func (s *SQLiteStorage) GetContractByContractID(ctx context.Context, contractID string) (*models.TrackedContract, error) {
	query := `
		SELECT id, contract_id, name, owner, active, created_at, updated_at
		FROM contracts WHERE contract_id = ?
	`
	return s.scanContract(s.db.QueryRowContext(ctx, query, contractID))
}

func (s *SQLiteStorage) scanContract(row *sql.Row) (*models.TrackedContract, error) {
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
func (s *SQLiteStorage) GetContracts(ctx context.Context, active *bool) ([]*models.TrackedContract, error) {
	query := `
		SELECT id, contract_id, name, owner, active, created_at, updated_at
		FROM contracts
	`
	args := []interface{}{}
	if active != nil {
		query += " WHERE active = ?"
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
func (s *SQLiteStorage) UpdateContract(ctx context.Context, contract *models.TrackedContract) error {
	query := `
		UPDATE contracts SET name = ?, owner = ?, active = ?, updated_at = ?
		WHERE id = ?
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
func (s *SQLiteStorage) CountActiveContracts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contracts WHERE active = 1").Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count active contracts", err.Error())
	}
	return count, nil
}

// UpsertEvent atomically inserts or updates an event keyed on the unique
// (contract_id, ledger, event_index) triple. The conditional insert is the
// dedup mechanism under concurrent writers; the row is never read first.
func (s *SQLiteStorage) UpsertEvent(ctx context.Context, event *models.ContractEvent) (bool, error) {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal event payload", err.Error())
	}

	var timestamp sql.NullTime
	if event.Timestamp != nil {
		timestamp = sql.NullTime{Time: *event.Timestamp, Valid: true}
	}

	insert := `
		INSERT INTO events (contract_id, event_type, payload, ledger, event_index, tx_hash, timestamp, raw_xdr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, ledger, event_index) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, insert,
		event.ContractID, event.EventType, string(payloadJSON),
		event.Ledger, event.EventIndex, event.TxHash, timestamp, event.RawXDR)
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to upsert event", err.Error())
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read upsert result", err.Error())
	}

	created := inserted == 1
	if !created {
		// Row exists: overwrite the mutable fields only.
		update := `
			UPDATE events SET event_type = ?, payload = ?, tx_hash = ?, timestamp = ?, raw_xdr = ?
			WHERE contract_id = ? AND ledger = ? AND event_index = ?
		`
		_, err = s.db.ExecContext(ctx, update,
			event.EventType, string(payloadJSON), event.TxHash, timestamp, event.RawXDR,
			event.ContractID, event.Ledger, event.EventIndex)
		if err != nil {
			return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to update event", err.Error())
		}
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM events WHERE contract_id = ? AND ledger = ? AND event_index = ?",
		event.ContractID, event.Ledger, event.EventIndex)
	if err := row.Scan(&event.ID, &event.CreatedAt); err != nil {
		return false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read upserted event", err.Error())
	}

	return created, nil
}

// GetEvent retrieves a single event by ID
func (s *SQLiteStorage) GetEvent(ctx context.Context, id int64) (*models.ContractEvent, error) {
	query := `
		SELECT id, contract_id, event_type, payload, ledger, event_index, tx_hash, timestamp, raw_xdr, created_at
		FROM events WHERE id = ?
	`

	row := s.db.QueryRowContext(ctx, query, id)
	return scanEvent(row.Scan)
}

func scanEvent(scan func(dest ...interface{}) error) (*models.ContractEvent, error) {
	var event models.ContractEvent
	var payloadJSON string
	var timestamp sql.NullTime

	err := scan(&event.ID, &event.ContractID, &event.EventType, &payloadJSON,
		&event.Ledger, &event.EventIndex, &event.TxHash, &timestamp, &event.RawXDR, &event.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event", err.Error())
	}

	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal event payload", err.Error())
	}
	if timestamp.Valid {
		event.Timestamp = &timestamp.Time
	}

	return &event, nil
}

// SearchEvents retrieves events matching the filter along with the total count
func (s *SQLiteStorage) SearchEvents(ctx context.Context, filter models.EventFilter) ([]*models.ContractEvent, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter.ContractID != nil {
		where += " AND e.contract_id = (SELECT id FROM contracts WHERE contract_id = ?)"
		args = append(args, *filter.ContractID)
	}
	if filter.EventType != nil {
		where += " AND e.event_type = ?"
		args = append(args, *filter.EventType)
	}
	if filter.FromLedger != nil {
		where += " AND e.ledger >= ?"
		args = append(args, *filter.FromLedger)
	}
	if filter.ToLedger != nil {
		where += " AND e.ledger <= ?"
		args = append(args, *filter.ToLedger)
	}
	if filter.PayloadContains != "" {
		where += " AND e.payload LIKE ?"
		args = append(args, "%"+filter.PayloadContains+"%")
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
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
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
func (s *SQLiteStorage) SaveRule(ctx context.Context, rule *models.AlertRule) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO alert_rules (contract_id, name, condition, action_type, action_target, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		rule.ContractID, rule.Name, string(rule.Condition),
		rule.ActionType, rule.ActionTarget, rule.Active, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save alert rule", err.Error())
	}

	id, err := res.LastInsertId()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read rule id", err.Error())
	}
	rule.ID = id
	rule.CreatedAt = now

	return nil
}

// GetRule retrieves an alert rule by ID
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*models.AlertRule, error) {
	query := `
		SELECT id, contract_id, name, condition, action_type, action_target, active, created_at
		FROM alert_rules WHERE id = ?
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
func (s *SQLiteStorage) GetActiveRules(ctx context.Context, contractID int64) ([]*models.AlertRule, error) {
	query := `
		SELECT id, contract_id, name, condition, action_type, action_target, active, created_at
		FROM alert_rules WHERE contract_id = ? AND active = 1
		ORDER BY created_at
	`
	return s.queryRules(ctx, query, contractID)
}

// GetRules retrieves alert rules, optionally scoped to a contract
func (s *SQLiteStorage) GetRules(ctx context.Context, contractID *int64) ([]*models.AlertRule, error) {
	query := `
		SELECT id, contract_id, name, condition, action_type, action_target, active, created_at
		FROM alert_rules
	`
	args := []interface{}{}
	if contractID != nil {
		query += " WHERE contract_id = ?"
		args = append(args, *contractID)
	}
	query += " ORDER BY created_at DESC"
	return s.queryRules(ctx, query, args...)
}

func (s *SQLiteStorage) queryRules(ctx context.Context, query string, args ...interface{}) ([]*models.AlertRule, error) {
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
func (s *SQLiteStorage) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	query := `
		UPDATE alert_rules SET name = ?, condition = ?, action_type = ?, action_target = ?, active = ?
		WHERE id = ?
	`
	_, err := s.db.ExecContext(ctx, query,
		rule.Name, string(rule.Condition), rule.ActionType, rule.ActionTarget, rule.Active, rule.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update alert rule", err.Error())
	}
	return nil
}

// DeleteRule deletes an alert rule
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = ?", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete alert rule", err.Error())
	}
	return nil
}

// SaveExecution appends an alert execution record
func (s *SQLiteStorage) SaveExecution(ctx context.Context, execution *models.AlertExecution) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO alert_executions (rule_id, event_id, status, response, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		execution.RuleID, execution.EventID, execution.Status, execution.Response, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save alert execution", err.Error())
	}

	id, err := res.LastInsertId()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read execution id", err.Error())
	}
	execution.ID = id
	execution.CreatedAt = now

	return nil
}

// GetExecutions retrieves recent executions for a rule
func (s *SQLiteStorage) GetExecutions(ctx context.Context, ruleID int64, limit int) ([]*models.AlertExecution, error) {
	query := `
		SELECT id, rule_id, event_id, status, response, created_at
		FROM alert_executions WHERE rule_id = ?
		ORDER BY created_at DESC LIMIT ?
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
func (s *SQLiteStorage) CountExecutions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_executions").Scan(&count)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count alert executions", err.Error())
	}
	return count, nil
}

// SaveAPIKey inserts an API key
func (s *SQLiteStorage) SaveAPIKey(ctx context.Context, key *models.APIKey) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO api_keys (owner, name, key, tier, quota_per_hour, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		key.Owner, key.Name, key.Key, key.Tier, key.QuotaPerHour, key.Active, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save API key", err.Error())
	}

	id, err := res.LastInsertId()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to read API key id", err.Error())
	}
	key.ID = id
	key.CreatedAt = now

	return nil
}

// GetActiveAPIKey retrieves an active API key by its secret token
func (s *SQLiteStorage) GetActiveAPIKey(ctx context.Context, token string) (*models.APIKey, error) {
	query := `
		SELECT id, owner, name, key, tier, quota_per_hour, active, last_used_at, created_at
		FROM api_keys WHERE key = ? AND active = 1
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
func (s *SQLiteStorage) GetAPIKeys(ctx context.Context, owner string) ([]*models.APIKey, error) {
	query := `
		SELECT id, owner, name, key, tier, quota_per_hour, active, last_used_at, created_at
		FROM api_keys WHERE owner = ?
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
func (s *SQLiteStorage) RevokeAPIKey(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE api_keys SET active = 0 WHERE id = ?", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to revoke API key", err.Error())
	}
	return nil
}

// TouchAPIKey updates the last-used timestamp of an API key
func (s *SQLiteStorage) TouchAPIKey(ctx context.Context, id int64, usedAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = ? WHERE id = ?", usedAt, id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to touch API key", err.Error())
	}
	return nil
}

// SaveContractQuota inserts or replaces a contract-level quota override after
// validating it against the owning key's tier ceiling
func (s *SQLiteStorage) SaveContractQuota(ctx context.Context, quota *models.ContractQuota) error {
	var key models.APIKey
	err := s.db.QueryRowContext(ctx,
		"SELECT id, tier, quota_per_hour FROM api_keys WHERE id = ?", quota.APIKeyID).
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
		VALUES (?, ?, ?, ?)
		ON CONFLICT (contract_id, api_key_id) DO UPDATE SET quota_per_hour = excluded.quota_per_hour
	`
	res, err := s.db.ExecContext(ctx, query,
		quota.ContractID, quota.APIKeyID, quota.QuotaPerHour, now)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save contract quota", err.Error())
	}

	if id, err := res.LastInsertId(); err == nil && id > 0 {
		quota.ID = id
	}
	quota.CreatedAt = now

	return nil
}

// GetContractQuota retrieves a quota override for a key/contract pair, nil
// when no override exists
func (s *SQLiteStorage) GetContractQuota(ctx context.Context, apiKeyID int64, contractID string) (*int, error) {
	query := `
		SELECT cq.quota_per_hour
		FROM contract_quotas cq
		JOIN contracts c ON c.id = cq.contract_id
		WHERE cq.api_key_id = ? AND c.contract_id = ?
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
