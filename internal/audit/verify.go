package audit

import (
	"github.com/opensource-finance/tradeproof/internal/domain"
)

// VerifyChain checks a trade's events in append order. At each index the
// previous-hash pointer is checked first, then the event hash is recomputed
// from the stored payload. The first failure stops verification. An empty
// chain is valid.
func VerifyChain(tradeID string, events []*domain.AuditEvent) domain.ChainVerification {
	res := domain.ChainVerification{
		TradeID:     tradeID,
		Valid:       true,
		TotalEvents: len(events),
	}

	var expectedPrev *string
	for i, ev := range events {
		if !samePointer(ev.PreviousHash, expectedPrev) {
			return broken(res, i, domain.BreakPreviousHash)
		}

		canonical, err := Canonicalize(ev.EventData)
		if err != nil || ComputeHash(canonical, ev.PreviousHash) != ev.EventHash {
			return broken(res, i, domain.BreakEventHash)
		}

		hash := ev.EventHash
		expectedPrev = &hash
	}
	return res
}

func broken(res domain.ChainVerification, at int, reason domain.BreakReason) domain.ChainVerification {
	res.Valid = false
	res.BrokenAt = &at
	res.Reason = reason
	return res
}

func samePointer(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
