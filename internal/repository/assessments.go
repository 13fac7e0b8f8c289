package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

// SaveAssessment stores a readiness assessment.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.ReadinessAssessment) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: assessment ID is required", ErrInvalidInput)
	}

	inputs, err := json.Marshal(a.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	result, err := json.Marshal(a.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		INSERT INTO readiness_assessments (
			id, tenant_id, trade_id, inputs_digest, inputs, result,
			score, verdict, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.TradeID, a.InputsDigest,
		string(inputs), string(result),
		a.Result.Score, string(a.Result.Verdict), a.CreatedAt,
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.ReadinessAssessment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, trade_id, inputs_digest, inputs, result, created_at
		FROM readiness_assessments
		WHERE tenant_id = ? AND id = ?
	`

	var a domain.ReadinessAssessment
	var tradeID sql.NullString
	var inputs, result string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assessmentID).Scan(
		&a.ID, &a.TenantID, &tradeID, &a.InputsDigest, &inputs, &result, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.TradeID = tradeID.String
	if err := json.Unmarshal([]byte(inputs), &a.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs: %w", err)
	}
	if err := json.Unmarshal([]byte(result), &a.Result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &a, nil
}
