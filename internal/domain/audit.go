package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrChainConflict is returned by an AuditStore when an insert would fork a chain.
var ErrChainConflict = errors.New("audit chain conflict")

// AuditEvent is one link of a per-trade hash chain. Events are never
// updated or deleted.
type AuditEvent struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	TradeID      string          `json:"tradeId"`
	Seq          int64           `json:"seq"`
	EventType    string          `json:"eventType"`
	EventData    json.RawMessage `json:"eventData"`
	PreviousHash *string         `json:"previousHash"`
	EventHash    string          `json:"eventHash"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// BreakReason tells a broken link apart from a tampered payload.
type BreakReason string

const (
	BreakPreviousHash BreakReason = "previous_hash_mismatch"
	BreakEventHash    BreakReason = "event_hash_mismatch"
)

// ChainVerification is the outcome of verifying one trade's chain.
type ChainVerification struct {
	TradeID     string      `json:"tradeId"`
	Valid       bool        `json:"valid"`
	BrokenAt    *int        `json:"brokenAt,omitempty"`
	Reason      BreakReason `json:"reason,omitempty"`
	TotalEvents int         `json:"totalEvents"`
}

// AuditStore is the persistence the audit chain needs.
type AuditStore interface {
	// InsertAuditEvent stores a new event. Returns ErrChainConflict if the
	// event's seq is taken or its previous hash is no longer the chain head.
	InsertAuditEvent(ctx context.Context, event *AuditEvent) error

	// LastAuditEvent returns the newest event for a trade, or nil, nil.
	LastAuditEvent(ctx context.Context, tenantID, tradeID string) (*AuditEvent, error)

	// ListAuditEvents returns a trade's chain in append order.
	ListAuditEvents(ctx context.Context, tenantID, tradeID string) ([]*AuditEvent, error)
}

// AppendEventRequest is the API payload for appending an event.
type AppendEventRequest struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData"`
}

// VerifyTradesRequest asks for several chains to be verified at once.
type VerifyTradesRequest struct {
	TradeIDs []string `json:"tradeIds"`
}

// Audit event types written by the service.
const (
	EventCrossCheckCompleted = "crosscheck.completed"
	EventReadinessScored     = "readiness.scored"
)
