package repository

// Schema definitions for Kavach database.
// Compatible with both SQLite and PostgreSQL.

// Transaction times are stored as unix milliseconds so velocity window
// queries compare integers on both drivers.
const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    merchant TEXT NOT NULL,
    amount REAL NOT NULL,
    time_label TEXT NOT NULL,
    source TEXT,
    category TEXT,
    occurred_at_ms BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, occurred_at_ms);
`

const schemaRiskReports = `
CREATE TABLE IF NOT EXISTS risk_reports (
    transaction_id TEXT PRIMARY KEY,
    user_id TEXT,
    risk_score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    report TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_reports_level ON risk_reports(risk_level);
`

// schemaProfiles holds one JSON blob per user.
const schemaProfiles = `
CREATE TABLE IF NOT EXISTS behavioral_profiles (
    user_id TEXT PRIMARY KEY,
    profile TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    weight INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL,
    factor TEXT,
    risk TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

const schemaFraudCases = `
CREATE TABLE IF NOT EXISTS fraud_cases (
    id TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    user_id TEXT,
    status TEXT NOT NULL,
    reason TEXT,
    action TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_cases_tx ON fraud_cases(transaction_id);
CREATE INDEX IF NOT EXISTS idx_fraud_cases_status ON fraud_cases(status);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRiskReports,
		schemaProfiles,
		schemaRuleConfigs,
		schemaFraudCases,
	}
}
