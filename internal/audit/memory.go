package audit

import (
	"context"
	"sync"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

// MemoryStore is an in-process AuditStore. Like the SQL stores it rejects
// an insert whose sequence number is already taken.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[chainID][]*domain.AuditEvent
}

// chainID identifies one trade's chain. A struct key keeps tenant and
// trade IDs apart whatever characters they contain.
type chainID struct {
	tenant string
	trade  string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chains: make(map[chainID][]*domain.AuditEvent)}
}

func chainKey(tenantID, tradeID string) chainID {
	return chainID{tenant: tenantID, trade: tradeID}
}

// InsertAuditEvent appends event to its trade's chain.
func (s *MemoryStore) InsertAuditEvent(_ context.Context, event *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := chainKey(event.TenantID, event.TradeID)
	chain := s.chains[key]
	if int64(len(chain)) != event.Seq {
		return domain.ErrChainConflict
	}
	var head *string
	if len(chain) > 0 {
		head = &chain[len(chain)-1].EventHash
	}
	if !samePointer(event.PreviousHash, head) {
		return domain.ErrChainConflict
	}
	cp := *event
	s.chains[key] = append(s.chains[key], &cp)
	return nil
}

// LastAuditEvent returns the newest event for a trade, or nil.
func (s *MemoryStore) LastAuditEvent(_ context.Context, tenantID, tradeID string) (*domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[chainKey(tenantID, tradeID)]
	if len(chain) == 0 {
		return nil, nil
	}
	cp := *chain[len(chain)-1]
	return &cp, nil
}

// ListAuditEvents returns copies of a trade's events in append order.
func (s *MemoryStore) ListAuditEvents(_ context.Context, tenantID, tradeID string) ([]*domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[chainKey(tenantID, tradeID)]
	out := make([]*domain.AuditEvent, len(chain))
	for i, ev := range chain {
		cp := *ev
		out[i] = &cp
	}
	return out, nil
}
