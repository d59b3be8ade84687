package feature

import (
	"math"
	"time"

	"github.com/daru-lab/jeonseguard/internal/document"
)

// hugMultiplier is the statutory guarantee ceiling: assessed price × 1.26.
const hugMultiplier = 1.26

// defaultBuildingAgeYears is used when no usage-approval date can be parsed.
// Availability is deliberately favored over precision here.
const defaultBuildingAgeYears = 10

// Inputs carries everything the calculator needs for one request. Monetary
// amounts are in manwon except PublicPriceWon (the assessed-price table is
// published in won).
type Inputs struct {
	DepositManwon     float64
	MarketPriceManwon float64
	PublicPriceWon    float64
	SeniorDebtManwon  float64

	MainUse           string
	UsageApprovalDate string
	IsIllegal         bool
	IsTrustOwner      bool
	ShortTermWeight   float64

	ParkingCount   int
	HouseholdCount int
}

// Calculator derives the model feature vector. Pure and total: every input
// has a documented default, every division is guarded, every output finite.
type Calculator struct {
	keywords KeywordTable
	now      func() time.Time
}

// NewCalculator creates a Calculator with the given keyword table.
func NewCalculator(keywords KeywordTable) *Calculator {
	return &Calculator{keywords: keywords, now: time.Now}
}

// NewCalculatorAt pins the clock for deterministic tests.
func NewCalculatorAt(keywords KeywordTable, now time.Time) *Calculator {
	return &Calculator{keywords: keywords, now: func() time.Time { return now }}
}

// Calculate builds the feature vector. The estimator upstream is responsible
// for failing requests with no market price; if a non-positive price still
// arrives, deposit×1.25 is substituted as a last-resort heuristic (an assumed
// 80% jeonse ratio), not a primary path.
func (c *Calculator) Calculate(in Inputs) Vector {
	market := in.MarketPriceManwon
	if market <= 0 {
		market = in.DepositManwon * 1.25
	}

	var v Vector

	if market > 0 {
		v.JeonseRatio = in.DepositManwon / market
		v.TotalRiskRatio = (in.DepositManwon + in.SeniorDebtManwon) / market
	}

	// HUG ratio against the statutory ceiling: assessed×1.26 when the
	// assessed price is known, else the plain market price stands in for
	// the limit.
	hugLimit := market
	if in.PublicPriceWon > 0 {
		hugLimit = in.PublicPriceWon * hugMultiplier / 10000
	}
	if hugLimit > 0 {
		v.HUGRiskRatio = in.DepositManwon / hugLimit
	}

	trustWeight := 0.0
	if in.IsTrustOwner {
		trustWeight = 0.5
		v.IsTrustOwner = 1
	}
	typeWeight := c.keywords.TypeRiskWeight(in.MainUse)
	v.ShortTermWeight = in.ShortTermWeight
	v.EstimatedLoanRatio = clip01(typeWeight + in.ShortTermWeight + trustWeight)

	v.BuildingAge = c.buildingAge(in.UsageApprovalDate)

	if in.IsIllegal {
		v.IsIllegal = 1
	}

	households := in.HouseholdCount
	if households < 1 {
		households = 1
	}
	v.ParkingPerHousehold = float64(in.ParkingCount) / float64(households)
	// Buildings under 100 units are standalone/small complexes, a
	// higher-risk class.
	if households < 100 {
		v.IsMicroComplex = 1
	}

	switch c.keywords.Classify(in.MainUse) {
	case TypeAPT:
		v.TypeAPT = 1
	case TypeOfficetel:
		v.TypeOfficetel = 1
	case TypeVilla:
		v.TypeVilla = 1
	default:
		v.TypeEtc = 1
	}

	return v
}

// buildingAge computes years since usage approval, falling back to a fixed
// 10-year default when the date cannot be parsed.
func (c *Calculator) buildingAge(approvalDate string) float64 {
	dt, ok := document.ParseFlexibleDate(approvalDate)
	if !ok {
		return defaultBuildingAgeYears
	}
	age := c.now().Sub(dt).Hours() / 24 / 365.25
	if age < 0 || math.IsNaN(age) || math.IsInf(age, 0) {
		return defaultBuildingAgeYears
	}
	return age
}

func clip01(x float64) float64 {
	if x < 0 || math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
