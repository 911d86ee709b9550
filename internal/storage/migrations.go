package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create contracts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS contracts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					contract_id TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					owner TEXT NOT NULL,
					active BOOLEAN DEFAULT TRUE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_contracts_active ON contracts(active);
			`,
		},
		{
			Version:     "002",
			Description: "Create events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					contract_id INTEGER NOT NULL,
					event_type TEXT NOT NULL,
					payload TEXT NOT NULL, -- JSON
					ledger INTEGER NOT NULL,
					event_index INTEGER NOT NULL,
					tx_hash TEXT NOT NULL,
					timestamp DATETIME,
					raw_xdr TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (contract_id) REFERENCES contracts (id)
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedup ON events(contract_id, ledger, event_index);
				CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
				CREATE INDEX IF NOT EXISTS idx_events_ledger ON events(ledger);
				CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
			`,
		},
		{
			Version:     "003",
			Description: "Create alert_rules and alert_executions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS alert_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					contract_id INTEGER NOT NULL,
					name TEXT NOT NULL,
					condition TEXT NOT NULL, -- JSON condition tree
					action_type TEXT NOT NULL,
					action_target TEXT NOT NULL,
					active BOOLEAN DEFAULT TRUE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (contract_id) REFERENCES contracts (id)
				);

				CREATE INDEX IF NOT EXISTS idx_alert_rules_contract ON alert_rules(contract_id, active);

				CREATE TABLE IF NOT EXISTS alert_executions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					rule_id INTEGER NOT NULL,
					event_id INTEGER NOT NULL,
					status TEXT NOT NULL,
					response TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (rule_id) REFERENCES alert_rules (id),
					FOREIGN KEY (event_id) REFERENCES events (id)
				);

				CREATE INDEX IF NOT EXISTS idx_alert_executions_rule ON alert_executions(rule_id, created_at);
			`,
		},
		{
			Version:     "004",
			Description: "Create api_keys and contract_quotas tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_keys (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					owner TEXT NOT NULL,
					name TEXT NOT NULL,
					key TEXT NOT NULL UNIQUE,
					tier TEXT NOT NULL DEFAULT 'free',
					quota_per_hour INTEGER NOT NULL,
					active BOOLEAN DEFAULT TRUE,
					last_used_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_api_keys_key ON api_keys(key);

				CREATE TABLE IF NOT EXISTS contract_quotas (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					contract_id INTEGER NOT NULL,
					api_key_id INTEGER NOT NULL,
					quota_per_hour INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (contract_id) REFERENCES contracts (id),
					FOREIGN KEY (api_key_id) REFERENCES api_keys (id),
					UNIQUE (contract_id, api_key_id)
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create contracts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS contracts (
					id BIGSERIAL PRIMARY KEY,
					contract_id TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					owner TEXT NOT NULL,
					active BOOLEAN DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_contracts_active ON contracts(active);
			`,
		},
		{
			Version:     "002",
			Description: "Create events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS events (
					id BIGSERIAL PRIMARY KEY,
					contract_id BIGINT NOT NULL REFERENCES contracts (id),
					event_type TEXT NOT NULL,
					payload JSONB NOT NULL,
					ledger BIGINT NOT NULL,
					event_index INTEGER NOT NULL,
					tx_hash TEXT NOT NULL,
					timestamp TIMESTAMP WITH TIME ZONE,
					raw_xdr TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedup ON events(contract_id, ledger, event_index);
				CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
				CREATE INDEX IF NOT EXISTS idx_events_ledger ON events(ledger);
				CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
				CREATE INDEX IF NOT EXISTS idx_events_payload_gin ON events USING GIN(payload);
			`,
		},
		{
			Version:     "003",
			Description: "Create alert_rules and alert_executions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS alert_rules (
					id BIGSERIAL PRIMARY KEY,
					contract_id BIGINT NOT NULL REFERENCES contracts (id),
					name TEXT NOT NULL,
					condition JSONB NOT NULL,
					action_type TEXT NOT NULL,
					action_target TEXT NOT NULL,
					active BOOLEAN DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_alert_rules_contract ON alert_rules(contract_id, active);

				CREATE TABLE IF NOT EXISTS alert_executions (
					id BIGSERIAL PRIMARY KEY,
					rule_id BIGINT NOT NULL REFERENCES alert_rules (id),
					event_id BIGINT NOT NULL REFERENCES events (id),
					status TEXT NOT NULL,
					response TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_alert_executions_rule ON alert_executions(rule_id, created_at);
			`,
		},
		{
			Version:     "004",
			Description: "Create api_keys and contract_quotas tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_keys (
					id BIGSERIAL PRIMARY KEY,
					owner TEXT NOT NULL,
					name TEXT NOT NULL,
					key TEXT NOT NULL UNIQUE,
					tier TEXT NOT NULL DEFAULT 'free',
					quota_per_hour INTEGER NOT NULL,
					active BOOLEAN DEFAULT TRUE,
					last_used_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_api_keys_key ON api_keys(key);

				CREATE TABLE IF NOT EXISTS contract_quotas (
					id BIGSERIAL PRIMARY KEY,
					contract_id BIGINT NOT NULL REFERENCES contracts (id),
					api_key_id BIGINT NOT NULL REFERENCES api_keys (id),
					quota_per_hour INTEGER NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					UNIQUE (contract_id, api_key_id)
				);
			`,
		},
	}
}
