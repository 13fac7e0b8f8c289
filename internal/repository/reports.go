package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

// SaveReport stores a cross-check report. The full report is kept as a JSON
// body next to the columns used for lookup.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.Report) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if report == nil || report.ID == "" {
		return fmt.Errorf("%w: report ID is required", ErrInvalidInput)
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	query := `
		INSERT INTO reports (
			id, tenant_id, trade_id, lc_reference, verdict, digest, created_at, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.TradeID, report.LCReference,
		string(report.Summary.Verdict), report.Digest, report.CreatedAt,
		string(body),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: report %s already exists", ErrConflict, report.ID)
	}
	return err
}

// GetReport retrieves a report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.Report, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT body FROM reports WHERE tenant_id = ? AND id = ?`

	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return decodeReport(body)
}

// ListReportsByTrade returns a trade's reports, oldest first.
func (r *SQLRepository) ListReportsByTrade(ctx context.Context, tenantID string, tradeID string) ([]*domain.Report, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT body FROM reports
		WHERE tenant_id = ? AND trade_id = ?
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		report, err := decodeReport(body)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

func decodeReport(body string) (*domain.Report, error) {
	var report domain.Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
