package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/quick"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/opensource-finance/tradeproof/internal/domain"
	"github.com/opensource-finance/tradeproof/internal/metrics"
)

type ChainSuite struct {
	suite.Suite
	ctx     context.Context
	store   *MemoryStore
	metrics *metrics.Metrics
	chain   *Chain
}

func TestChainSuite(t *testing.T) {
	suite.Run(t, new(ChainSuite))
}

func (s *ChainSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.chain = NewChain(s.store, s.metrics)
}

func (s *ChainSuite) appendN(tradeID string, n int) []*domain.AuditEvent {
	events := make([]*domain.AuditEvent, 0, n)
	for i := 0; i < n; i++ {
		ev, err := s.chain.AppendValue(s.ctx, "tenant-001", tradeID, "document.checked", map[string]any{
			"seq":     i,
			"verdict": "COMPLIANT",
		})
		s.Require().NoError(err)
		events = append(events, ev)
	}
	return events
}

// stored returns the live event held by the store so tests can tamper with it.
func (s *ChainSuite) stored(tradeID string, i int) *domain.AuditEvent {
	return s.store.chains[chainKey("tenant-001", tradeID)][i]
}

func (s *ChainSuite) TestAppendLinksEvents() {
	events := s.appendN("trade-1", 3)

	s.Nil(events[0].PreviousHash, "first event has no previous hash")
	s.Equal(int64(0), events[0].Seq)
	for i := 1; i < len(events); i++ {
		s.Require().NotNil(events[i].PreviousHash)
		s.Equal(events[i-1].EventHash, *events[i].PreviousHash)
		s.Equal(int64(i), events[i].Seq)
	}

	s.Equal(ComputeHash(events[0].EventData, nil), events[0].EventHash)
	s.Equal(3.0, testutil.ToFloat64(s.metrics.AuditAppends))
}

func (s *ChainSuite) TestGenesisHash() {
	ev, err := s.chain.Append(s.ctx, "tenant-001", "trade-g", "note", json.RawMessage(`{"b":1,"a":"x"}`))
	s.Require().NoError(err)

	s.Equal(`{"a":"x","b":1}`, string(ev.EventData))
	s.Equal(ComputeHash([]byte(`{"a":"x","b":1}`), nil), ev.EventHash)
	s.Equal(ComputeHash([]byte(`{"a":"x","b":1}`), strPtr("genesis")), ev.EventHash,
		"a nil previous hash hashes as the literal genesis")
}

func (s *ChainSuite) TestVerifyIntactChain() {
	s.appendN("trade-1", 3)

	res, err := s.chain.Verify(s.ctx, "tenant-001", "trade-1")
	s.Require().NoError(err)
	s.True(res.Valid)
	s.Nil(res.BrokenAt)
	s.Equal(3, res.TotalEvents)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ChainVerifications.WithLabelValues(OutcomeValid)))
}

func (s *ChainSuite) TestVerifyEmptyChain() {
	res, err := s.chain.Verify(s.ctx, "tenant-001", "nothing-here")
	s.Require().NoError(err)
	s.True(res.Valid)
	s.Equal(0, res.TotalEvents)
}

func (s *ChainSuite) TestTamperedPayloadDetected() {
	s.appendN("trade-1", 3)
	s.stored("trade-1", 1).EventData = json.RawMessage(`{"seq":1,"verdict":"DISCREPANCIES_FOUND"}`)

	res, err := s.chain.Verify(s.ctx, "tenant-001", "trade-1")
	s.Require().NoError(err)
	s.False(res.Valid)
	s.Require().NotNil(res.BrokenAt)
	s.Equal(1, *res.BrokenAt)
	s.Equal(domain.BreakEventHash, res.Reason)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ChainVerifications.WithLabelValues(OutcomeTamperedPayload)))
}

func (s *ChainSuite) TestBrokenPointerDetected() {
	s.appendN("trade-1", 3)
	s.stored("trade-1", 2).PreviousHash = strPtr("0000000000000000000000000000000000000000000000000000000000000000")

	res, err := s.chain.Verify(s.ctx, "tenant-001", "trade-1")
	s.Require().NoError(err)
	s.False(res.Valid)
	s.Require().NotNil(res.BrokenAt)
	s.Equal(2, *res.BrokenAt)
	s.Equal(domain.BreakPreviousHash, res.Reason)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ChainVerifications.WithLabelValues(OutcomeBrokenLink)))
}

func (s *ChainSuite) TestGenesisWithPointerDetected() {
	s.appendN("trade-1", 2)
	s.stored("trade-1", 0).PreviousHash = strPtr("genesis")

	res, err := s.chain.Verify(s.ctx, "tenant-001", "trade-1")
	s.Require().NoError(err)
	s.False(res.Valid)
	s.Equal(0, *res.BrokenAt)
	s.Equal(domain.BreakPreviousHash, res.Reason)
}

func (s *ChainSuite) TestReformattedPayloadStillVerifies() {
	s.appendN("trade-1", 2)
	s.stored("trade-1", 1).EventData = json.RawMessage("{ \"verdict\" : \"COMPLIANT\",\n \"seq\": 1 }")

	res, err := s.chain.Verify(s.ctx, "tenant-001", "trade-1")
	s.Require().NoError(err)
	s.True(res.Valid, "whitespace and key order do not change the canonical form")
}

func (s *ChainSuite) TestAppendValidation() {
	s.Run("missing trade id", func() {
		_, err := s.chain.Append(s.ctx, "tenant-001", " ", "note", nil)
		s.ErrorIs(err, ErrInvalidEvent)
	})

	s.Run("missing event type", func() {
		_, err := s.chain.Append(s.ctx, "tenant-001", "trade-1", "", nil)
		s.ErrorIs(err, ErrInvalidEvent)
	})

	s.Run("malformed payload", func() {
		_, err := s.chain.Append(s.ctx, "tenant-001", "trade-1", "note", json.RawMessage(`{"a":`))
		s.ErrorIs(err, ErrInvalidEvent)
	})

	s.Run("empty payload becomes an empty object", func() {
		ev, err := s.chain.Append(s.ctx, "tenant-001", "trade-empty", "note", nil)
		s.Require().NoError(err)
		s.Equal("{}", string(ev.EventData))
	})
}

func (s *ChainSuite) TestTenantsAreSeparateChains() {
	_, err := s.chain.AppendValue(s.ctx, "tenant-001", "trade-1", "note", map[string]int{"n": 1})
	s.Require().NoError(err)
	ev, err := s.chain.AppendValue(s.ctx, "tenant-002", "trade-1", "note", map[string]int{"n": 1})
	s.Require().NoError(err)

	s.Nil(ev.PreviousHash)
	s.Equal(int64(0), ev.Seq)
}

func (s *ChainSuite) TestSeparatorInIDsDoesNotMergeChains() {
	_, err := s.chain.AppendValue(s.ctx, "a", "b:c", "note", map[string]int{"n": 1})
	s.Require().NoError(err)

	events, err := s.chain.Events(s.ctx, "a:b", "c")
	s.Require().NoError(err)
	s.Empty(events)

	res, err := s.chain.Verify(s.ctx, "a:b", "c")
	s.Require().NoError(err)
	s.Equal(0, res.TotalEvents)

	ev, err := s.chain.AppendValue(s.ctx, "a:b", "c", "note", map[string]int{"n": 2})
	s.Require().NoError(err)
	s.Nil(ev.PreviousHash)
	s.Equal(int64(0), ev.Seq)
}

func (s *ChainSuite) TestConcurrentAppendsDoNotFork() {
	const writers = 25

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.chain.AppendValue(s.ctx, "tenant-001", "trade-hot", "note", map[string]int{"writer": i})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}

	res, err := s.chain.Verify(s.ctx, "tenant-001", "trade-hot")
	s.Require().NoError(err)
	s.True(res.Valid)
	s.Equal(writers, res.TotalEvents)
	s.Empty(s.chain.locks.locks, "trade locks are released")
}

func (s *ChainSuite) TestStoreRejectsFork() {
	events := s.appendN("trade-1", 2)

	fork := *events[1]
	fork.ID = "fork"
	err := s.store.InsertAuditEvent(s.ctx, &fork)
	s.ErrorIs(err, domain.ErrChainConflict)
}

func (s *ChainSuite) TestVerifyTrades() {
	s.appendN("trade-a", 2)
	s.appendN("trade-b", 3)
	s.stored("trade-b", 1).EventData = json.RawMessage(`{"tampered":true}`)

	results, err := s.chain.VerifyTrades(s.ctx, "tenant-001", []string{"trade-a", "trade-b", "trade-c"})
	s.Require().NoError(err)
	s.Require().Len(results, 3)

	s.Equal("trade-a", results[0].TradeID)
	s.True(results[0].Valid)
	s.Equal("trade-b", results[1].TradeID)
	s.False(results[1].Valid)
	s.Equal(1, *results[1].BrokenAt)
	s.True(results[2].Valid)
	s.Equal(0, results[2].TotalEvents)
}

type failingStore struct{ *MemoryStore }

func (failingStore) ListAuditEvents(context.Context, string, string) ([]*domain.AuditEvent, error) {
	return nil, errors.New("connection reset")
}

func (s *ChainSuite) TestVerifyTradesPropagatesStoreErrors() {
	chain := NewChain(failingStore{NewMemoryStore()}, nil)
	_, err := chain.VerifyTrades(s.ctx, "tenant-001", []string{"a", "b"})
	s.Error(err)
}

// racingStore lets another writer extend the chain just before each of
// the first `rivals` inserts.
type racingStore struct {
	*MemoryStore
	rival  *Chain
	rivals int
}

func (r *racingStore) InsertAuditEvent(ctx context.Context, event *domain.AuditEvent) error {
	if r.rivals > 0 {
		r.rivals--
		if _, err := r.rival.AppendValue(ctx, event.TenantID, event.TradeID, "rival.write", map[string]int{"n": r.rivals}); err != nil {
			return err
		}
	}
	return r.MemoryStore.InsertAuditEvent(ctx, event)
}

func (s *ChainSuite) TestAppendRetriesLostRace() {
	mem := NewMemoryStore()
	store := &racingStore{MemoryStore: mem, rival: NewChain(mem, nil), rivals: 2}
	chain := NewChain(store, nil)

	event, err := chain.AppendValue(s.ctx, "tenant-001", "trade-race", "document.checked", map[string]string{"a": "x"})
	s.Require().NoError(err)
	s.Equal(int64(2), event.Seq)

	res, err := chain.Verify(s.ctx, "tenant-001", "trade-race")
	s.Require().NoError(err)
	s.True(res.Valid)
	s.Equal(3, res.TotalEvents)
}

func (s *ChainSuite) TestAppendGivesUpAfterRepeatedConflicts() {
	mem := NewMemoryStore()
	store := &racingStore{MemoryStore: mem, rival: NewChain(mem, nil), rivals: maxAppendAttempts}
	chain := NewChain(store, nil)

	_, err := chain.AppendValue(s.ctx, "tenant-001", "trade-race", "document.checked", map[string]string{"a": "x"})
	s.ErrorIs(err, domain.ErrChainConflict)
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"SortedKeys", `{"b":1,"a":2}`, `{"a":2,"b":1}`},
		{"Nested", `{"z":{"y":[3,{"d":1,"c":2}]},"a":null}`, `{"a":null,"z":{"y":[3,{"c":2,"d":1}]}}`},
		{"NumbersVerbatim", `{"amount":52400.00,"big":12345678901234567890}`, `{"amount":52400.00,"big":12345678901234567890}`},
		{"NoHTMLEscape", `{"note":"<b>&</b>"}`, `{"note":"<b>&</b>"}`},
		{"Whitespace", "{ \"a\" :\n 1 }", `{"a":1}`},
		{"Scalar", `"x"`, `"x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize([]byte(tt.in))
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}

	_, err := Canonicalize([]byte(`{"a":1} {"b":2}`))
	require.Error(t, err, "trailing data is rejected")

	_, err = Canonicalize([]byte(``))
	require.Error(t, err)
}

func TestCanonicalizeIdempotent(t *testing.T) {
	f := func(keys []string, n int64, flag bool) bool {
		m := map[string]any{"n": n, "flag": flag}
		for i, k := range keys {
			m[fmt.Sprintf("%s-%d", k, i)] = k
		}
		once, err := CanonicalizeValue(m)
		if err != nil {
			return false
		}
		twice, err := Canonicalize(once)
		return err == nil && string(once) == string(twice)
	}

	if err := quick.Check(f, nil); err != nil {
		t.Fatalf("property check failed: %v", err)
	}
}

func TestChainProperty(t *testing.T) {
	f := func(n uint8) bool {
		chain := NewChain(NewMemoryStore(), nil)
		count := int(n%20 + 1)
		for i := 0; i < count; i++ {
			if _, err := chain.AppendValue(context.Background(), "t", "trade", "note", map[string]int{"i": i}); err != nil {
				return false
			}
		}
		res, err := chain.Verify(context.Background(), "t", "trade")
		return err == nil && res.Valid && res.TotalEvents == count
	}

	if err := quick.Check(f, nil); err != nil {
		t.Fatalf("property check failed: %v", err)
	}
}

func strPtr(s string) *string { return &s }
