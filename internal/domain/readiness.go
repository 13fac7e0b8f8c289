package domain

import "time"

// ReadinessInputs are the regulatory signals for one trade corridor.
type ReadinessInputs struct {
	// TriggerFlags holds named regulatory overlays, e.g. "eudr": true.
	TriggerFlags map[string]bool `json:"triggerFlags"`

	HazardTags []string `json:"hazardTags"`

	// RestrictionFlags marks sanctions, embargoes or licence requirements.
	// Any entry forces a RED verdict.
	RestrictionFlags map[string]bool `json:"restrictionFlags,omitempty"`

	// RequirementCount is the number of applicable document requirements.
	RequirementCount int `json:"requirementCount"`
}

// RiskCategory names one of the four penalty categories.
type RiskCategory string

const (
	RiskRegulatory     RiskCategory = "regulatory"
	RiskHazard         RiskCategory = "hazard"
	RiskDocumentVolume RiskCategory = "document_volume"
	RiskRestriction    RiskCategory = "restriction"
)

// RiskFactor is one category's contribution to the readiness score.
type RiskFactor struct {
	Category RiskCategory `json:"category"`
	Penalty  int          `json:"penalty"`
	Max      int          `json:"max"`
	Detail   string       `json:"detail"`
}

// ReadinessResult is the scored outcome.
type ReadinessResult struct {
	Score             int          `json:"score"`
	Verdict           Severity     `json:"verdict"`
	Summary           string       `json:"summary"`
	Factors           []RiskFactor `json:"factors"`
	PrimaryRiskFactor RiskCategory `json:"primaryRiskFactor"`
	PrimaryHazard     string       `json:"primaryHazard,omitempty"`
}

// ReadinessAssessment is a persisted readiness score.
type ReadinessAssessment struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	TradeID      string          `json:"tradeId,omitempty"`
	InputsDigest string          `json:"inputsDigest"`
	Inputs       ReadinessInputs `json:"inputs"`
	Result       ReadinessResult `json:"result"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ReadinessRequest is the API payload for scoring.
type ReadinessRequest struct {
	TradeID string          `json:"tradeId,omitempty"`
	Inputs  ReadinessInputs `json:"inputs"`
}

// RecheckResponse reports whether a stored assessment still matches a fresh score.
type RecheckResponse struct {
	AssessmentID string          `json:"assessmentId"`
	Stale        bool            `json:"stale"`
	Stored       ReadinessResult `json:"stored"`
	Current      ReadinessResult `json:"current"`
}
