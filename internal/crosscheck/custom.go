package crosscheck

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/tradeproof/internal/domain"
)

// GlobalTenant marks rules that apply to every tenant.
const GlobalTenant = "*"

// RuleSet holds tenant-defined corridor rules compiled to CEL programs.
type RuleSet struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledRule
	ordered  []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("lc", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("doc", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("doc_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &RuleSet{
		env:      env,
		compiled: make(map[string]*CompiledRule),
	}, nil
}

// Validate compiles a rule without loading it.
func (rs *RuleSet) Validate(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	_, err := rs.compile(cfg)
	return err
}

// Load compiles a rule and adds it, replacing any rule with the same ID.
func (rs *RuleSet) Load(cfg *domain.RuleConfig) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	compiled, err := rs.compile(cfg)
	if err != nil {
		return err
	}

	rs.compiled[cfg.ID] = compiled
	rs.reorder()
	return nil
}

// LoadAll loads every enabled rule in configs.
func (rs *RuleSet) LoadAll(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := rs.Load(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reload replaces the whole set. On error the previous rules stay loaded.
func (rs *RuleSet) Reload(configs []*domain.RuleConfig) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	next := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := rs.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	rs.compiled = next
	rs.reorder()
	return nil
}

// Loaded returns the loaded rule configurations in ID order.
func (rs *RuleSet) Loaded() []*domain.RuleConfig {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	out := make([]*domain.RuleConfig, 0, len(rs.ordered))
	for _, r := range rs.ordered {
		out = append(out, r.Config)
	}
	return out
}

// Count returns the number of loaded rules.
func (rs *RuleSet) Count() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.compiled)
}

// Snapshot returns the loaded rules in ID order. The slice stays valid
// across later reloads.
func (rs *RuleSet) Snapshot() []*CompiledRule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.ordered
}

// Evaluate runs every rule visible to tenantID that targets doc's type,
// in rule ID order. A rule whose expression fails at runtime (for example
// a missing document key) produces no result.
func (rs *RuleSet) Evaluate(tenantID string, lc map[string]any, doc domain.TradeDocument) []domain.CheckResult {
	return evaluateRules(rs.Snapshot(), tenantID, lc, doc)
}

func evaluateRules(rules []*CompiledRule, tenantID string, lc map[string]any, doc domain.TradeDocument) []domain.CheckResult {
	fields := doc.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	activation := map[string]any{
		"lc":       lc,
		"doc":      fields,
		"doc_type": string(doc.Type),
	}

	var results []domain.CheckResult
	for _, r := range rules {
		cfg := r.Config
		if !visibleTo(cfg, tenantID) || !cfg.AppliesTo(doc.Type) {
			continue
		}

		out, _, err := r.Program.Eval(activation)
		if err != nil {
			continue
		}
		hit, ok := out.(types.Bool)
		if !ok {
			continue
		}

		res := domain.CheckResult{
			Field:        cfg.Name,
			DocumentType: doc.Type,
			Severity:     domain.SeverityGreen,
			Rule:         cfg.RuleRef,
			Explanation:  "Corridor rule satisfied.",
		}
		if res.Rule == "" {
			res.Rule = "Corridor rule " + cfg.ID
		}
		if hit {
			res.Severity = cfg.Severity
			res.Explanation = cfg.Explanation
		}
		results = append(results, res)
	}
	return results
}

// Close drops all loaded rules.
func (rs *RuleSet) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.compiled = make(map[string]*CompiledRule)
	rs.ordered = nil
	return nil
}

func visibleTo(cfg *domain.RuleConfig, tenantID string) bool {
	return cfg.TenantID == "" || cfg.TenantID == GlobalTenant || cfg.TenantID == tenantID
}

// reorder rebuilds the ID-ordered slice. Callers hold the write lock.
// The slice is replaced, never mutated, so readers may keep the old one.
func (rs *RuleSet) reorder() {
	ordered := make([]*CompiledRule, 0, len(rs.compiled))
	for _, r := range rs.compiled {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Config.ID < ordered[j].Config.ID
	})
	rs.ordered = ordered
}

func (rs *RuleSet) compile(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("rule %s: name is required", cfg.ID)
	}
	switch cfg.Severity {
	case domain.SeverityAmber, domain.SeverityRed:
	case "":
		cfg.Severity = domain.SeverityAmber
	default:
		return nil, fmt.Errorf("rule %s: severity must be AMBER or RED, got %q", cfg.ID, cfg.Severity)
	}
	if cfg.DocumentType != "" && cfg.DocumentType != "*" && !cfg.DocumentType.Valid() {
		return nil, fmt.Errorf("rule %s: unknown document type %q", cfg.ID, cfg.DocumentType)
	}
	if cfg.Explanation == "" {
		cfg.Explanation = cfg.Name + " failed."
	}

	ast, issues := rs.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := rs.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// lcActivation exposes LC terms to CEL under their JSON names. Permission
// flags the LC leaves unset are omitted.
func lcActivation(lc domain.LCTerms) map[string]any {
	m := map[string]any{
		"lcReference":        lc.Reference,
		"beneficiaryName":    lc.BeneficiaryName,
		"applicantName":      lc.ApplicantName,
		"goodsDescription":   lc.GoodsDescription,
		"hsCode":             lc.HSCode,
		"quantity":           lc.Quantity,
		"quantityUnit":       lc.QuantityUnit,
		"unitPrice":          lc.UnitPrice,
		"currency":           lc.Currency,
		"totalAmount":        lc.TotalAmount,
		"countryOfOrigin":    lc.CountryOfOrigin,
		"portOfLoading":      lc.PortOfLoading,
		"portOfDischarge":    lc.PortOfDischarge,
		"latestShipmentDate": lc.LatestShipmentDate,
		"expiryDate":         lc.ExpiryDate,
		"incoterms":          lc.Incoterms,
	}
	if lc.PartialShipmentsAllowed != nil {
		m["partialShipmentsAllowed"] = *lc.PartialShipmentsAllowed
	}
	if lc.TranshipmentAllowed != nil {
		m["transhipmentAllowed"] = *lc.TranshipmentAllowed
	}
	return m
}
