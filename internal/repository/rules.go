package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

// GlobalTenant owns rules that apply to every tenant.
const GlobalTenant = "*"

// SaveRuleConfig inserts or updates a rule. A rule ID owned by another
// tenant is rejected with ErrConflict.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, document_type,
			expression, severity, rule_ref, explanation, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			document_type = excluded.document_type,
			expression = excluded.expression,
			severity = excluded.severity,
			rule_ref = excluded.rule_ref,
			explanation = excluded.explanation,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
		WHERE rule_configs.tenant_id = excluded.tenant_id
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version,
		string(rule.DocumentType), rule.Expression, string(rule.Severity),
		rule.RuleRef, rule.Explanation, boolToInt(rule.Enabled),
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: rule %s belongs to another tenant", ErrConflict, rule.ID)
	}
	return nil
}

const ruleColumns = `
	id, tenant_id, name, description, version, document_type,
	expression, severity, rule_ref, explanation, enabled,
	created_at, updated_at
`

// GetRuleConfig retrieves a rule visible to the tenant, including global rules.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM rule_configs WHERE id = ? AND tenant_id IN (?, ?)`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID, tenantID, GlobalTenant))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRuleConfigs returns the tenant's rules plus global ones, enabled or not.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + ruleColumns + ` FROM rule_configs WHERE tenant_id IN (?, ?) ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, GlobalTenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListAllRuleConfigs returns every enabled rule across tenants.
func (r *SQLRepository) ListAllRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `SELECT ` + ruleColumns + ` FROM rule_configs WHERE enabled = 1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRules(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.RuleConfig, error) {
	var rule domain.RuleConfig
	var docType, severity string
	var description, ruleRef, explanation sql.NullString
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description, &rule.Version,
		&docType, &rule.Expression, &severity, &ruleRef, &explanation,
		&enabled, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.DocumentType = domain.DocumentType(docType)
	rule.Severity = domain.Severity(severity)
	rule.RuleRef = ruleRef.String
	rule.Explanation = explanation.String
	rule.Enabled = enabled == 1
	return &rule, nil
}

func scanRules(rows *sql.Rows) ([]*domain.RuleConfig, error) {
	var rules []*domain.RuleConfig
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
