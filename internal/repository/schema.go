package repository

// Schema definitions for the Tradeproof database.
// Compatible with both SQLite and PostgreSQL.

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    trade_id TEXT NOT NULL,
    lc_reference TEXT NOT NULL,
    verdict TEXT NOT NULL,
    digest TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reports_trade ON reports(tenant_id, trade_id, created_at);
`

// Rule IDs are unique across tenants because the loaded rule set is keyed by ID.
const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    document_type TEXT NOT NULL,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    rule_ref TEXT,
    explanation TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS readiness_assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    trade_id TEXT,
    inputs_digest TEXT NOT NULL,
    inputs TEXT NOT NULL,
    result TEXT NOT NULL,
    score INTEGER NOT NULL,
    verdict TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON readiness_assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_digest ON readiness_assessments(tenant_id, inputs_digest);
`

// schemaAuditEvents defines the append-only audit chain. The unique index
// on (tenant_id, trade_id, seq) rejects a second event claiming the same
// position, so a chain cannot fork.
const schemaAuditEvents = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    trade_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    event_data TEXT NOT NULL,
    previous_hash TEXT,
    event_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_events_chain ON audit_events(tenant_id, trade_id, seq);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaReports,
		schemaRuleConfigs,
		schemaAssessments,
		schemaAuditEvents,
	}
}
