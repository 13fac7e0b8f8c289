package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

const auditColumns = `
	id, tenant_id, trade_id, seq, event_type, event_data,
	previous_hash, event_hash, created_at
`

// InsertAuditEvent appends an event to its trade chain. The head is read
// and checked inside the same transaction as the insert; on PostgreSQL an
// advisory lock on the trade serialises writers across processes.
func (r *SQLRepository) InsertAuditEvent(ctx context.Context, event *domain.AuditEvent) error {
	if event == nil || event.TenantID == "" || event.TradeID == "" {
		return fmt.Errorf("%w: tenantID and tradeID are required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit insert: %w", err)
	}
	defer tx.Rollback()

	if r.driver == "postgres" {
		lockKey := event.TenantID + "|" + event.TradeID
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
			return fmt.Errorf("lock audit chain: %w", err)
		}
	}

	head, err := lastAuditEvent(ctx, tx, r.rebind, event.TenantID, event.TradeID)
	if err != nil {
		return err
	}
	if !extendsHead(event, head) {
		return domain.ErrChainConflict
	}

	query := `INSERT INTO audit_events (` + auditColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var prev sql.NullString
	if event.PreviousHash != nil {
		prev = sql.NullString{String: *event.PreviousHash, Valid: true}
	}

	_, err = tx.ExecContext(ctx, r.rebind(query),
		event.ID, event.TenantID, event.TradeID, event.Seq, event.EventType,
		string(event.EventData), prev, event.EventHash, event.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrChainConflict
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

// extendsHead reports whether event is the next link after head.
func extendsHead(event, head *domain.AuditEvent) bool {
	if head == nil {
		return event.Seq == 0 && event.PreviousHash == nil
	}
	return event.Seq == head.Seq+1 &&
		event.PreviousHash != nil &&
		*event.PreviousHash == head.EventHash
}

// LastAuditEvent returns the newest event of a trade chain, or nil, nil.
func (r *SQLRepository) LastAuditEvent(ctx context.Context, tenantID, tradeID string) (*domain.AuditEvent, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	return lastAuditEvent(ctx, r.db, r.rebind, tenantID, tradeID)
}

// ListAuditEvents returns a trade chain in seq order.
func (r *SQLRepository) ListAuditEvents(ctx context.Context, tenantID, tradeID string) ([]*domain.AuditEvent, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + auditColumns + ` FROM audit_events WHERE tenant_id = ? AND trade_id = ? ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lastAuditEvent(ctx context.Context, q querier, rebind func(string) string, tenantID, tradeID string) (*domain.AuditEvent, error) {
	query := `
		SELECT ` + auditColumns + ` FROM audit_events
		WHERE tenant_id = ? AND trade_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`

	event, err := scanAuditEvent(q.QueryRowContext(ctx, rebind(query), tenantID, tradeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

func scanAuditEvent(row rowScanner) (*domain.AuditEvent, error) {
	var event domain.AuditEvent
	var data string
	var prev sql.NullString

	err := row.Scan(
		&event.ID, &event.TenantID, &event.TradeID, &event.Seq, &event.EventType,
		&data, &prev, &event.EventHash, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.EventData = json.RawMessage(data)
	if prev.Valid {
		event.PreviousHash = &prev.String
	}
	return &event, nil
}
