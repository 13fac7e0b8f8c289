package crosscheck

import (
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

func newRuleSet(t *testing.T) *RuleSet {
	t.Helper()
	rs, err := NewRuleSet()
	if err != nil {
		t.Fatalf("failed to create rule set: %v", err)
	}
	t.Cleanup(func() { rs.Close() })
	return rs
}

func TestRuleSetLoad(t *testing.T) {
	rs := newRuleSet(t)

	if rs.Count() != 0 {
		t.Errorf("expected 0 rules, got %d", rs.Count())
	}

	rule := &domain.RuleConfig{
		ID:           "vessel-name",
		Name:         "Vessel Name",
		DocumentType: domain.DocBillOfLading,
		Expression:   `!("vesselName" in doc)`,
		Severity:     domain.SeverityAmber,
		Enabled:      true,
	}
	if err := rs.Load(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if rs.Count() != 1 {
		t.Errorf("expected 1 rule, got %d", rs.Count())
	}
}

func TestRuleSetRejectsInvalid(t *testing.T) {
	rs := newRuleSet(t)

	tests := []struct {
		name string
		cfg  *domain.RuleConfig
	}{
		{"Nil", nil},
		{"BadCEL", &domain.RuleConfig{ID: "bad", Name: "Bad", Expression: "this is not valid CEL !!!"}},
		{"NonBool", &domain.RuleConfig{ID: "num", Name: "Num", Expression: "lc.totalAmount"}},
		{"GreenSeverity", &domain.RuleConfig{ID: "sev", Name: "Sev", Expression: "true", Severity: domain.SeverityGreen}},
		{"UnknownDocType", &domain.RuleConfig{ID: "dt", Name: "DT", Expression: "true", DocumentType: "airway_bill"}},
		{"MissingID", &domain.RuleConfig{Name: "No ID", Expression: "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := rs.Validate(tt.cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if rs.Count() != 0 {
		t.Errorf("validation must not load rules, got %d", rs.Count())
	}
}

func TestRuleSetEvaluate(t *testing.T) {
	rs := newRuleSet(t)

	rules := []*domain.RuleConfig{
		{
			ID:           "b-vessel",
			TenantID:     GlobalTenant,
			Name:         "Vessel Name",
			DocumentType: domain.DocBillOfLading,
			Expression:   `!("vesselName" in doc) || doc.vesselName == ""`,
			Severity:     domain.SeverityAmber,
			RuleRef:      "Corridor policy 3.1",
			Explanation:  "Vessel name missing.",
			Enabled:      true,
		},
		{
			ID:          "a-unit-price",
			TenantID:    "tenant-001",
			Name:        "Unit Price Cap",
			Expression:  `doc_type == "commercial_invoice" && lc.unitPrice > 450.0`,
			Severity:    domain.SeverityRed,
			Explanation: "Unit price above corridor cap.",
			Enabled:     true,
		},
		{
			ID:         "c-needs-key",
			Name:       "Needs Key",
			Expression: `doc.inspectionCert == "yes"`,
			Enabled:    true,
		},
	}
	if err := rs.LoadAll(rules); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	lc := lcActivation(sampleLC())

	t.Run("TenantScoped", func(t *testing.T) {
		invoice := cleanInvoice()
		got := rs.Evaluate("tenant-001", lc, invoice)
		if len(got) != 1 {
			t.Fatalf("expected 1 result, got %d: %+v", len(got), got)
		}
		if got[0].Field != "Unit Price Cap" || got[0].Severity != domain.SeverityRed {
			t.Errorf("unexpected result %+v", got[0])
		}
		if got[0].Rule != "Corridor rule a-unit-price" {
			t.Errorf("expected default rule ref, got %q", got[0].Rule)
		}

		if other := rs.Evaluate("tenant-002", lc, invoice); len(other) != 0 {
			t.Errorf("tenant-002 must not see tenant-001 rules, got %+v", other)
		}
	})

	t.Run("DocumentTypeFilter", func(t *testing.T) {
		bl := cleanBL()
		got := rs.Evaluate("tenant-002", lc, bl)
		if len(got) != 1 || got[0].Severity != domain.SeverityAmber {
			t.Fatalf("expected one AMBER vessel result, got %+v", got)
		}

		bl.Fields["vesselName"] = "MSC Abidjan"
		got = rs.Evaluate("tenant-002", lc, bl)
		if len(got) != 1 || got[0].Severity != domain.SeverityGreen {
			t.Errorf("expected GREEN once vessel is named, got %+v", got)
		}
	})

	t.Run("RuntimeErrorSkips", func(t *testing.T) {
		doc := domain.TradeDocument{Type: domain.DocOther}
		for _, r := range rs.Evaluate("tenant-001", lc, doc) {
			if r.Field == "Needs Key" {
				t.Errorf("rule with missing key should be skipped, got %+v", r)
			}
		}
	})

	t.Run("IDOrder", func(t *testing.T) {
		loaded := rs.Loaded()
		if len(loaded) != 3 {
			t.Fatalf("expected 3 rules, got %d", len(loaded))
		}
		if loaded[0].ID != "a-unit-price" || loaded[1].ID != "b-vessel" || loaded[2].ID != "c-needs-key" {
			t.Errorf("rules not in ID order: %s, %s, %s", loaded[0].ID, loaded[1].ID, loaded[2].ID)
		}
	})
}

func TestEngineAppliesCustomRules(t *testing.T) {
	rs := newRuleSet(t)
	if err := rs.Load(&domain.RuleConfig{
		ID:           "vessel",
		Name:         "Vessel Name",
		DocumentType: domain.DocBillOfLading,
		Expression:   `!("vesselName" in doc)`,
		Severity:     domain.SeverityRed,
		Enabled:      true,
	}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	engine := NewEngine(WithClock(func() time.Time { return fixedNow }), WithRules(rs))
	results, summary := engine.Run(sampleLC(), []domain.TradeDocument{cleanBL()})

	last := results[len(results)-1]
	if last.Field != "Vessel Name" || last.Severity != domain.SeverityRed {
		t.Errorf("expected custom rule result last, got %+v", last)
	}
	if summary.Verdict != domain.VerdictDiscrepancies {
		t.Errorf("expected DISCREPANCIES_FOUND, got %s", summary.Verdict)
	}
}

func TestRuleSetReload(t *testing.T) {
	rs := newRuleSet(t)

	rs.Load(&domain.RuleConfig{ID: "old", Name: "Old", Expression: "true", Enabled: true})

	err := rs.Reload([]*domain.RuleConfig{
		{ID: "new-1", Name: "New 1", Expression: "false", Enabled: true},
		{ID: "new-2", Name: "New 2", Expression: "true", Enabled: false},
	})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if rs.Count() != 1 || rs.Loaded()[0].ID != "new-1" {
		t.Errorf("expected only new-1 loaded, got %d rules", rs.Count())
	}

	if err := rs.Reload([]*domain.RuleConfig{{ID: "broken", Name: "Broken", Expression: "(((", Enabled: true}}); err == nil {
		t.Error("expected reload error")
	}
	if rs.Count() != 1 {
		t.Errorf("failed reload must keep previous rules, got %d", rs.Count())
	}
}

func TestRuleSetConcurrentAccess(t *testing.T) {
	rs := newRuleSet(t)
	lc := lcActivation(sampleLC())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			rs.Reload([]*domain.RuleConfig{{ID: "r", Name: "R", Expression: `doc_type == "other"`, Enabled: true}})
		}()
		go func() {
			defer wg.Done()
			rs.Evaluate(GlobalTenant, lc, domain.TradeDocument{Type: domain.DocOther})
		}()
	}
	wg.Wait()
}

func TestRuleSetSnapshotSurvivesReload(t *testing.T) {
	rs := newRuleSet(t)
	rs.Load(&domain.RuleConfig{ID: "old", Name: "Old", Expression: "true", Enabled: true})

	before := rs.Snapshot()
	if err := rs.Reload([]*domain.RuleConfig{{ID: "new", Name: "New", Expression: "true", Enabled: true}}); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	results := evaluateRules(before, GlobalTenant, lcActivation(sampleLC()), domain.TradeDocument{Type: domain.DocOther})
	if len(results) != 1 || results[0].Field != "Old" {
		t.Errorf("snapshot should keep the old rules, got %+v", results)
	}
	if got := rs.Evaluate(GlobalTenant, lcActivation(sampleLC()), domain.TradeDocument{Type: domain.DocOther}); len(got) != 1 || got[0].Field != "New" {
		t.Errorf("rule set should evaluate the new rules, got %+v", got)
	}
}

func TestEngineUsesOneRuleSetPerCheck(t *testing.T) {
	rs := newRuleSet(t)
	setA := []*domain.RuleConfig{{ID: "a", Name: "A", Expression: "true", Enabled: true}}
	setB := []*domain.RuleConfig{{ID: "b", Name: "B", Expression: "true", Enabled: true}}
	if err := rs.Reload(setA); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	engine := NewEngine(WithClock(func() time.Time { return fixedNow }), WithRules(rs))
	docs := make([]domain.TradeDocument, 8)
	for i := range docs {
		docs[i] = domain.TradeDocument{Type: domain.DocOther}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			next := setA
			if i%2 == 0 {
				next = setB
			}
			rs.Reload(next)
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	for i := 0; i < 200; i++ {
		results, _ := engine.Run(sampleLC(), docs)
		seen := map[string]bool{}
		for _, r := range results {
			if r.Field == "A" || r.Field == "B" {
				seen[r.Field] = true
			}
		}
		if len(seen) != 1 {
			t.Fatalf("check %d mixed rule sets: %v", i, seen)
		}
	}
}
