package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaAccountProfiles = `
CREATE TABLE IF NOT EXISTS account_profiles (
    tenant_id TEXT NOT NULL,
    account_number TEXT NOT NULL,
    account_id TEXT NOT NULL,
    avg_amount REAL NOT NULL DEFAULT 0,
    max_amount REAL NOT NULL DEFAULT 0,
    min_amount REAL NOT NULL DEFAULT 0,
    stddev_amount REAL NOT NULL DEFAULT 0,
    total_txn_count INTEGER NOT NULL DEFAULT 0,
    bounced_cheques INTEGER NOT NULL DEFAULT 0,
    bounce_rate REAL NOT NULL DEFAULT 0,
    usual_hours TEXT,
    unique_payee_count INTEGER NOT NULL DEFAULT 0,
    balance REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, account_number)
);

CREATE INDEX IF NOT EXISTS idx_profiles_account_id ON account_profiles(tenant_id, account_id);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    txn_type TEXT NOT NULL,
    amount REAL NOT NULL,
    receiver_name TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(tenant_id, account_id, created_at);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    cheque_number TEXT,
    account_number TEXT,
    amount REAL NOT NULL,
    fraud_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    decision TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    result TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_account ON evaluations(tenant_id, account_number);
CREATE INDEX IF NOT EXISTS idx_evaluations_risk ON evaluations(tenant_id, risk_level);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(tenant_id, timestamp);
`

const schemaScreeningRules = `
CREATE TABLE IF NOT EXISTS screening_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    points REAL NOT NULL DEFAULT 0,
    severity TEXT NOT NULL,
    reason TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_screening_rules_tenant ON screening_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screening_rules_enabled ON screening_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAccountProfiles,
		schemaTransactions,
		schemaEvaluations,
		schemaScreeningRules,
	}
}
