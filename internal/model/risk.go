package model

import "time"

// RiskLevel is the categorical outcome of an assessment.
type RiskLevel string

const (
	RiskLevelSafe    RiskLevel = "SAFE"
	RiskLevelCaution RiskLevel = "CAUTION"
	RiskLevelRisky   RiskLevel = "RISKY"
)

// Rank orders levels from safest (0) to riskiest (2). Unknown levels rank
// above RISKY so they are never mistaken for safe.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevelSafe:
		return 0
	case RiskLevelCaution:
		return 1
	case RiskLevelRisky:
		return 2
	}
	return 3
}

// RiskSeverity grades an individual risk factor.
type RiskSeverity string

const (
	SeverityLow      RiskSeverity = "LOW"
	SeverityMedium   RiskSeverity = "MEDIUM"
	SeverityHigh     RiskSeverity = "HIGH"
	SeverityCritical RiskSeverity = "CRITICAL"
)

// RiskFactorType identifies the kind of risk a factor describes.
type RiskFactorType string

const (
	FactorHUGIneligible   RiskFactorType = "HUG_INELIGIBLE"
	FactorHighLTV         RiskFactorType = "HIGH_LTV"
	FactorSeniorDebt      RiskFactorType = "SENIOR_DEBT"
	FactorIllegalBuilding RiskFactorType = "ILLEGAL_BUILDING"
	FactorTrustProperty   RiskFactorType = "TRUST_PROPERTY"
	FactorShortOwnership  RiskFactorType = "SHORT_OWNERSHIP"
	FactorOldBuilding     RiskFactorType = "OLD_BUILDING"
	FactorNone            RiskFactorType = "NONE"
)

// RiskFactor is one structured, explainable finding.
type RiskFactor struct {
	Type     RiskFactorType `json:"type"`
	Severity RiskSeverity   `json:"severity"`
	Message  string         `json:"message"`
}

// HUGResult describes deposit-insurance eligibility for the assessed contract.
type HUGResult struct {
	Eligible      bool    `json:"is_eligible"`
	SafeLimitWon  int64   `json:"safe_limit"`      // guarantee ceiling in won
	CoverageRatio float64 `json:"coverage_ratio"`  // % of deposit covered
	Reason        string  `json:"reason,omitempty"` // set when ineligible
	Message       string  `json:"message"`
}

// ScoringPath records which scoring engine produced the probability.
type ScoringPath string

const (
	ScoredByModel ScoringPath = "model"
	ScoredByRules ScoringPath = "rules"
)

// Assessment is the final output of the risk pipeline for one request.
type Assessment struct {
	ID          string      `json:"id"`
	Address     string      `json:"address"`
	AddressKey  string      `json:"address_key"`
	DepositWon  int64       `json:"deposit"`
	MarketWon   int64       `json:"market_price"`
	PriceSource PriceSource `json:"price_source"`

	RiskScore   float64      `json:"risk_score"` // 0-100
	RiskLevel   RiskLevel    `json:"risk_level"`
	RiskFactors []RiskFactor `json:"major_risk_factors"`

	HUG             HUGResult   `json:"hug_result"`
	Recommendations []string    `json:"recommendations"`
	ScoringPath     ScoringPath `json:"scoring_path"`

	Details AssessmentDetails `json:"details"`

	Persisted  bool      `json:"persisted"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// AssessmentDetails exposes the key intermediate indicators to callers.
type AssessmentDetails struct {
	JeonseRatio             float64 `json:"jeonse_ratio"` // %
	SeniorDebtWon           int64   `json:"senior_debt"`
	IsIllegalBuilding       bool    `json:"is_illegal_building"`
	IsTrust                 bool    `json:"is_trust"`
	BuildingAge             float64 `json:"building_age"`
	OwnershipDurationMonths *int    `json:"ownership_duration_months,omitempty"`
}
