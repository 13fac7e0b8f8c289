package domain

import "time"

// RuleConfig is a tenant-defined corridor rule expressed in CEL.
// The expression sees `lc`, `doc` and `doc_type` and returns true when the
// document is discrepant.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// DocumentType limits the rule to one document type; "*" or "" applies to all.
	DocumentType DocumentType `json:"documentType"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Severity reported when the expression is true (AMBER or RED).
	Severity Severity `json:"severity"`

	// RuleRef is the cited rule identifier, e.g. "Corridor policy 4.2".
	RuleRef     string `json:"ruleRef"`
	Explanation string `json:"explanation"`

	// Whether rule is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// AppliesTo reports whether the rule targets documents of type t.
func (r *RuleConfig) AppliesTo(t DocumentType) bool {
	return r.DocumentType == "" || r.DocumentType == "*" || r.DocumentType == t
}
