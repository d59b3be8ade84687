package model

import "time"

// AssessmentRecord is the flat audit row persisted per parcel. The latest
// record supersedes any prior one for the same address key (delete+insert,
// last-write-wins); this is not an append-only history.
type AssessmentRecord struct {
	BuildingInfoID     int64       `json:"building_info_id"`
	AddressKey         string      `json:"address_key"`
	UsedRentPrice      float64     `json:"used_rent_price"`   // deposit, manwon
	UsedMarketPrice    float64     `json:"used_market_price"` // manwon
	JeonseRatio        float64     `json:"jeonse_ratio"`
	HUGSafeLimit       float64     `json:"hug_safe_limit"` // manwon
	HUGRiskRatio       float64     `json:"hug_risk_ratio"`
	TotalRiskRatio     float64     `json:"total_risk_ratio"`
	EstimatedLoanRatio float64     `json:"estimated_loan_ratio"`
	RiskLevel          RiskLevel   `json:"risk_level"`
	RiskScore          int         `json:"risk_score"`
	AIRiskProb         float64     `json:"ai_risk_prob"`
	ScoringPath        ScoringPath `json:"scoring_path"`
	AnalyzedAt         time.Time   `json:"analyzed_at"`
}
