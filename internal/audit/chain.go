// Package audit maintains per-trade, hash-linked event chains and verifies
// them for tampering.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidEvent is returned for an append with a missing trade ID, event
// type or malformed payload.
var ErrInvalidEvent = errors.New("invalid audit event")

// Verification outcomes reported to metrics and logs.
const (
	OutcomeValid           = "valid"
	OutcomeBrokenLink      = "broken_link"
	OutcomeTamperedPayload = "tampered_payload"
)

const (
	// maxParallelVerify bounds concurrent chain loads in VerifyTrades.
	maxParallelVerify = 8

	maxAppendAttempts = 3
)

// Chain appends to and verifies audit chains held in a store.
type Chain struct {
	store   domain.AuditStore
	locks   *tradeLocks
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewChain creates a chain over store. m may be nil.
func NewChain(store domain.AuditStore, m *metrics.Metrics) *Chain {
	return &Chain{
		store:   store,
		locks:   newTradeLocks(),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append adds an event to the trade's chain. Appends for the same trade
// are serialized; different trades proceed in parallel. The payload is
// stored in canonical form.
func (c *Chain) Append(ctx context.Context, tenantID, tradeID, eventType string, data json.RawMessage) (*domain.AuditEvent, error) {
	if strings.TrimSpace(tradeID) == "" {
		return nil, fmt.Errorf("%w: trade id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(eventType) == "" {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidEvent)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage(`{}`)
	}

	canonical, err := Canonicalize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	unlock := c.locks.lock(tenantID, tradeID)
	defer unlock()

	// Another process may extend the chain between reading the head and
	// inserting. Each retry re-reads the head.
	var event *domain.AuditEvent
	for attempt := 1; ; attempt++ {
		event, err = c.next(ctx, tenantID, tradeID, eventType, canonical)
		if err != nil {
			return nil, err
		}

		err = c.store.InsertAuditEvent(ctx, event)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrChainConflict) || attempt == maxAppendAttempts {
			return nil, fmt.Errorf("failed to insert audit event: %w", err)
		}
		slog.Warn("audit append lost race, retrying",
			"tenant_id", tenantID,
			"trade_id", tradeID,
			"seq", event.Seq,
			"attempt", attempt,
		)
	}

	c.metrics.IncrementAppend()
	slog.Debug("audit event appended",
		"tenant_id", tenantID,
		"trade_id", tradeID,
		"event_type", eventType,
		"seq", event.Seq,
	)
	return event, nil
}

// next builds the event that would extend the current chain head.
func (c *Chain) next(ctx context.Context, tenantID, tradeID, eventType string, canonical []byte) (*domain.AuditEvent, error) {
	last, err := c.store.LastAuditEvent(ctx, tenantID, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain head: %w", err)
	}

	var prev *string
	var seq int64
	if last != nil {
		h := last.EventHash
		prev = &h
		seq = last.Seq + 1
	}

	return &domain.AuditEvent{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		TradeID:      tradeID,
		Seq:          seq,
		EventType:    eventType,
		EventData:    json.RawMessage(canonical),
		PreviousHash: prev,
		EventHash:    ComputeHash(canonical, prev),
		CreatedAt:    c.now(),
	}, nil
}

// AppendValue canonicalizes v and appends it.
func (c *Chain) AppendValue(ctx context.Context, tenantID, tradeID, eventType string, v any) (*domain.AuditEvent, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return c.Append(ctx, tenantID, tradeID, eventType, raw)
}

// Events returns a trade's chain in append order.
func (c *Chain) Events(ctx context.Context, tenantID, tradeID string) ([]*domain.AuditEvent, error) {
	return c.store.ListAuditEvents(ctx, tenantID, tradeID)
}

// Verify loads and verifies one trade's chain. Integrity failures are
// reported in the result, not as errors.
func (c *Chain) Verify(ctx context.Context, tenantID, tradeID string) (domain.ChainVerification, error) {
	events, err := c.store.ListAuditEvents(ctx, tenantID, tradeID)
	if err != nil {
		return domain.ChainVerification{}, fmt.Errorf("failed to load chain: %w", err)
	}

	res := VerifyChain(tradeID, events)
	c.record(tenantID, res)
	return res, nil
}

// VerifyTrades verifies several chains concurrently. Results keep the
// order of tradeIDs.
func (c *Chain) VerifyTrades(ctx context.Context, tenantID string, tradeIDs []string) ([]domain.ChainVerification, error) {
	results := make([]domain.ChainVerification, len(tradeIDs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelVerify)

	for i, tradeID := range tradeIDs {
		g.Go(func() error {
			res, err := c.Verify(ctx, tenantID, tradeID)
			if err != nil {
				return fmt.Errorf("trade %s: %w", tradeID, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Chain) record(tenantID string, res domain.ChainVerification) {
	switch {
	case res.Valid:
		c.metrics.IncrementVerification(OutcomeValid)
	case res.Reason == domain.BreakPreviousHash:
		c.metrics.IncrementVerification(OutcomeBrokenLink)
		slog.Error("audit chain link broken",
			"tenant_id", tenantID,
			"trade_id", res.TradeID,
			"broken_at", *res.BrokenAt,
			"total_events", res.TotalEvents,
		)
	default:
		c.metrics.IncrementVerification(OutcomeTamperedPayload)
		slog.Error("audit payload tampered",
			"tenant_id", tenantID,
			"trade_id", res.TradeID,
			"broken_at", *res.BrokenAt,
			"total_events", res.TotalEvents,
		)
	}
}

// tradeLocks hands out one mutex per (tenant, trade) and frees it when the
// last holder releases it.
type tradeLocks struct {
	mu    sync.Mutex
	locks map[chainID]*tradeLock
}

type tradeLock struct {
	mu   sync.Mutex
	refs int
}

func newTradeLocks() *tradeLocks {
	return &tradeLocks{locks: make(map[chainID]*tradeLock)}
}

func (t *tradeLocks) lock(tenantID, tradeID string) func() {
	key := chainKey(tenantID, tradeID)

	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &tradeLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}
