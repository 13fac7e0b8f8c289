// Package crosscheck compares letter-of-credit terms against the documents
// presented under them, following UCP 600 and ISBP 745 practice.
package crosscheck

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/tradeproof/internal/domain"
)

// Rule citations attached to check results.
const (
	RuleLCReference      = "ISBP 745 para. A1"
	RuleNames            = "UCP 600 Art. 14(d)"
	RuleShipperName      = "UCP 600 Art. 14(k)"
	RuleCurrency         = "UCP 600 Art. 18(a)"
	RuleAmount           = "UCP 600 Art. 18(b)"
	RuleGoodsDescription = "UCP 600 Art. 18(c)"
	RuleQuantity         = "UCP 600 Art. 30(b)"
	RulePorts            = "UCP 600 Art. 20(a)(iii)"
	RuleShipmentDate     = "UCP 600 Art. 20(a)(ii)"
	RulePresentation     = "UCP 600 Art. 14(c)"
	RuleBLNumber         = "UCP 600 Art. 20(a)"
	RuleTranshipment     = "UCP 600 Art. 20(c)"
	RulePartialShipment  = "UCP 600 Art. 31(a)"
	RuleHSCode           = "ISBP 745 para. C4"
	RuleIncoterms        = "ISBP 745 para. C8"
	RuleCountryOfOrigin  = "ISBP 745 para. L3"
	RuleCHED             = "UK IPAFFS CHED format"
)

// Engine runs the fixed per-document-type checks plus any loaded custom
// rules. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	now   func() time.Time
	rules *RuleSet
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for the presentation-period check.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRules attaches a custom rule set.
func WithRules(rs *RuleSet) Option {
	return func(e *Engine) { e.rules = rs }
}

// NewEngine creates a cross-check engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the attached custom rule set, or nil.
func (e *Engine) Rules() *RuleSet {
	return e.rules
}

// RunCrossCheck checks documents against lc using the wall clock and no
// custom rules.
func RunCrossCheck(lc domain.LCTerms, docs []domain.TradeDocument) ([]domain.CheckResult, domain.CheckSummary) {
	return NewEngine().Run(lc, docs)
}

// Run checks documents against lc with only global custom rules applied.
func (e *Engine) Run(lc domain.LCTerms, docs []domain.TradeDocument) ([]domain.CheckResult, domain.CheckSummary) {
	return e.Check(GlobalTenant, lc, docs)
}

// Check produces the ordered result list and its summary. Results follow
// document order, then each document type's fixed field order.
// It panics on an unknown document type; callers validate first.
func (e *Engine) Check(tenantID string, lc domain.LCTerms, docs []domain.TradeDocument) ([]domain.CheckResult, domain.CheckSummary) {
	c := &checker{lc: lc, now: e.now()}

	if strings.TrimSpace(lc.Reference) == "" {
		c.results = append(c.results, domain.CheckResult{
			Field:       "LC Reference",
			Severity:    domain.SeverityAmber,
			Rule:        RuleLCReference,
			Explanation: "LC reference missing; documents should quote the credit number for traceability.",
		})
	}

	// One snapshot per check so a concurrent reload cannot split the documents
	// across two rule sets.
	var rules []*CompiledRule
	var lcVars map[string]any
	if e.rules != nil {
		rules = e.rules.Snapshot()
	}
	if len(rules) > 0 {
		lcVars = lcActivation(lc)
	}

	for _, doc := range docs {
		switch doc.Type {
		case domain.DocCommercialInvoice:
			c.invoice(doc)
		case domain.DocBillOfLading:
			c.billOfLading(doc)
		case domain.DocCertOfOrigin:
			c.name(doc, "Exporter Name", c.lc.BeneficiaryName, domain.FieldExporterName, RuleNames)
			c.countryOfOrigin(doc)
		case domain.DocPhytosanitary:
			c.name(doc, "Exporter Name", c.lc.BeneficiaryName, domain.FieldExporterName, RuleNames)
		case domain.DocPackingList:
			c.quantity(doc)
		case domain.DocOther:
		default:
			panic(fmt.Sprintf("crosscheck: unknown document type %q", doc.Type))
		}

		if ref := doc.Field(domain.FieldCHEDReference); ref != "" {
			c.add(doc, "CHED Reference", "", ref, RuleCHED, CheckCHEDReference(ref))
		}

		if lcVars != nil {
			c.results = append(c.results, evaluateRules(rules, tenantID, lcVars, doc)...)
		}
	}

	return c.results, Summarize(c.results)
}

type checker struct {
	lc      domain.LCTerms
	now     time.Time
	results []domain.CheckResult
}

func (c *checker) add(doc domain.TradeDocument, field, lcValue, docValue, rule string, o Outcome) {
	c.results = append(c.results, domain.CheckResult{
		Field:         field,
		LCValue:       lcValue,
		DocumentValue: docValue,
		DocumentType:  doc.Type,
		Severity:      o.Severity,
		Rule:          rule,
		Explanation:   o.Explanation,
	})
}

func (c *checker) invoice(doc domain.TradeDocument) {
	c.name(doc, "Beneficiary Name", c.lc.BeneficiaryName, domain.FieldBeneficiaryName, RuleNames)

	if ccy := doc.Field(domain.FieldCurrency); ccy != "" && strings.TrimSpace(c.lc.Currency) != "" {
		c.add(doc, "Currency", c.lc.Currency, ccy, RuleCurrency, CompareCurrency(c.lc.Currency, ccy))
	}

	c.amount(doc)
	c.quantity(doc)

	if desc := doc.Field(domain.FieldGoodsDescription); desc != "" {
		if o, ok := CompareDescription(c.lc.GoodsDescription, desc); ok {
			c.add(doc, "Goods Description", c.lc.GoodsDescription, desc, RuleGoodsDescription, o)
		}
	}

	if hs := doc.Field(domain.FieldHSCode); hs != "" {
		if o, ok := CompareCode(c.lc.HSCode, hs); ok {
			c.add(doc, "HS Code", c.lc.HSCode, hs, RuleHSCode, o)
		}
	}

	if terms := doc.Field(domain.FieldIncoterms); terms != "" && strings.TrimSpace(c.lc.Incoterms) != "" {
		c.add(doc, "Incoterms", c.lc.Incoterms, terms, RuleIncoterms, CompareIncoterms(c.lc.Incoterms, terms))
	}

	c.flag(doc, "Partial Shipment", domain.FieldPartialShipment, c.lc.PartialShipmentsAllowed, RulePartialShipment,
		red("Partial shipment presented but the credit prohibits partial shipments."))
}

func (c *checker) billOfLading(doc domain.TradeDocument) {
	c.name(doc, "Shipper Name", c.lc.BeneficiaryName, domain.FieldShipperName, RuleShipperName)
	c.port(doc, "Port of Loading", c.lc.PortOfLoading, domain.FieldPortOfLoading)
	c.port(doc, "Port of Discharge", c.lc.PortOfDischarge, domain.FieldPortOfDischarge)

	raw := doc.Field(domain.FieldOnBoardDate)
	if raw == "" {
		raw = doc.Field(domain.FieldShipmentDate)
	}
	if shipped, ok := parseDate(raw); ok {
		if latest, ok := parseDate(c.lc.LatestShipmentDate); ok {
			c.add(doc, "Shipment Date", c.lc.LatestShipmentDate, raw, RuleShipmentDate, CompareShipmentDate(latest, shipped))
		}
		c.add(doc, "Presentation Period", fmt.Sprintf("%d days", PresentationDays), raw, RulePresentation,
			ComparePresentation(shipped, c.now))
	}

	if bl := doc.Field(domain.FieldBLNumber); bl != "" {
		c.add(doc, "B/L Number", "", bl, RuleBLNumber, green("B/L number present."))
	} else {
		c.add(doc, "B/L Number", "", "", RuleBLNumber, red("B/L number missing; the transport document cannot be identified."))
	}

	c.quantity(doc)

	c.flag(doc, "Transhipment", domain.FieldTranshipment, c.lc.TranshipmentAllowed, RuleTranshipment,
		amber("Transhipment indicated but the credit prohibits it; acceptable only if the whole carriage is under one B/L."))
}

func (c *checker) countryOfOrigin(doc domain.TradeDocument) {
	country := doc.Field(domain.FieldCountryOfOrigin)
	if country == "" || strings.TrimSpace(c.lc.CountryOfOrigin) == "" {
		return
	}
	c.add(doc, "Country of Origin", c.lc.CountryOfOrigin, country, RuleCountryOfOrigin,
		CompareNames(c.lc.CountryOfOrigin, country))
}

// name runs the name ladder when the document carries the field at all.
// A present but blank value is reported; an absent key is skipped.
func (c *checker) name(doc domain.TradeDocument, field, lcName, key, rule string) {
	if strings.TrimSpace(lcName) == "" {
		return
	}
	raw, present := doc.Fields[key]
	if !present {
		return
	}
	c.add(doc, field, lcName, strings.TrimSpace(raw), rule, CompareNames(lcName, raw))
}

func (c *checker) port(doc domain.TradeDocument, field, lcPort, key string) {
	port := doc.Field(key)
	if port == "" || strings.TrimSpace(lcPort) == "" {
		return
	}
	c.add(doc, field, lcPort, port, RulePorts, CompareNames(lcPort, port))
}

// amount is safety-relevant: an absent or unreadable amount is reported.
func (c *checker) amount(doc domain.TradeDocument) {
	raw := doc.Field(domain.FieldTotalAmount)
	if c.lc.TotalAmount <= 0 {
		c.add(doc, "Amount", "", raw, RuleAmount, amber("LC amount not declared; cannot verify."))
		return
	}
	v, _ := parseNumber(raw)
	c.add(doc, "Amount", formatNumber(c.lc.TotalAmount), raw, RuleAmount, CompareAmount(c.lc.TotalAmount, v))
}

func (c *checker) quantity(doc domain.TradeDocument) {
	raw := doc.Field(domain.FieldQuantity)
	v, ok := parseNumber(raw)
	if !ok {
		return
	}
	lcValue := formatNumber(c.lc.Quantity)
	if c.lc.Quantity <= 0 {
		lcValue = ""
	}
	c.add(doc, "Quantity", lcValue, raw, RuleQuantity, CompareQuantity(c.lc.Quantity, v))
}

// flag compares a yes/no document indication against an LC permission.
// violation is reported when the document says yes and the LC says no.
func (c *checker) flag(doc domain.TradeDocument, field, key string, allowed *bool, rule string, violation Outcome) {
	if allowed == nil {
		return
	}
	raw := doc.Field(key)
	indicated, ok := parseFlag(raw)
	if !ok {
		return
	}
	o := green(field + " consistent with LC.")
	if indicated && !*allowed {
		o = violation
	}
	c.add(doc, field, formatFlag(allowed), raw, rule, o)
}
