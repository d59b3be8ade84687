package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daru-lab/jeonseguard/internal/feature"
	"github.com/daru-lab/jeonseguard/internal/model"
)

func factorTypes(factors []model.RiskFactor) []model.RiskFactorType {
	out := make([]model.RiskFactorType, 0, len(factors))
	for _, f := range factors {
		out = append(out, f.Type)
	}
	return out
}

func TestAnalyzeNeverEmpty(t *testing.T) {
	factors := Analyze(feature.Vector{}, 0, true)
	require.Len(t, factors, 1)
	assert.Equal(t, model.FactorNone, factors[0].Type)
	assert.Equal(t, model.SeverityLow, factors[0].Severity)
	assert.NotEmpty(t, factors[0].Message)
}

func TestAnalyzeSingleFactors(t *testing.T) {
	tests := []struct {
		name         string
		vec          feature.Vector
		debtManwon   float64
		hugEligible  bool
		wantType     model.RiskFactorType
		wantSeverity model.RiskSeverity
	}{
		{"hug ineligible", feature.Vector{}, 0, false, model.FactorHUGIneligible, model.SeverityCritical},
		{"jeonse ratio very high", feature.Vector{JeonseRatio: 0.85}, 0, true, model.FactorHighLTV, model.SeverityHigh},
		{"jeonse ratio somewhat high", feature.Vector{JeonseRatio: 0.72}, 0, true, model.FactorHighLTV, model.SeverityMedium},
		{"senior debt", feature.Vector{}, 12000, true, model.FactorSeniorDebt, model.SeverityHigh},
		{"illegal building", feature.Vector{IsIllegal: 1}, 0, true, model.FactorIllegalBuilding, model.SeverityHigh},
		{"trust owner", feature.Vector{IsTrustOwner: 1}, 0, true, model.FactorTrustProperty, model.SeverityMedium},
		{"very short ownership", feature.Vector{ShortTermWeight: 0.3}, 0, true, model.FactorShortOwnership, model.SeverityHigh},
		{"short ownership", feature.Vector{ShortTermWeight: 0.1}, 0, true, model.FactorShortOwnership, model.SeverityMedium},
		{"old building", feature.Vector{BuildingAge: 35}, 0, true, model.FactorOldBuilding, model.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factors := Analyze(tt.vec, tt.debtManwon, tt.hugEligible)
			require.Len(t, factors, 1)
			assert.Equal(t, tt.wantType, factors[0].Type)
			assert.Equal(t, tt.wantSeverity, factors[0].Severity)
			assert.NotEmpty(t, factors[0].Message)
		})
	}
}

func TestAnalyzeBoundariesDoNotTrigger(t *testing.T) {
	// Thresholds are strict: sitting exactly on a limit is not a factor.
	vec := feature.Vector{JeonseRatio: 0.7, BuildingAge: 30}
	factors := Analyze(vec, 0, true)
	require.Len(t, factors, 1)
	assert.Equal(t, model.FactorNone, factors[0].Type)
}

func TestAnalyzePrecedenceOrder(t *testing.T) {
	vec := feature.Vector{
		JeonseRatio:     0.9,
		IsIllegal:       1,
		IsTrustOwner:    1,
		ShortTermWeight: 0.3,
		BuildingAge:     40,
	}
	factors := Analyze(vec, 5000, false)
	assert.Equal(t, []model.RiskFactorType{
		model.FactorHUGIneligible,
		model.FactorHighLTV,
		model.FactorSeniorDebt,
		model.FactorIllegalBuilding,
		model.FactorTrustProperty,
		model.FactorShortOwnership,
		model.FactorOldBuilding,
	}, factorTypes(factors))
}

func TestAnalyzeDebtMessageGroupsDigits(t *testing.T) {
	factors := Analyze(feature.Vector{}, 1234567, true)
	require.Len(t, factors, 1)
	assert.Contains(t, factors[0].Message, "1,234,567")
}

func TestRecommendations(t *testing.T) {
	tests := []struct {
		name        string
		level       model.RiskLevel
		hugEligible bool
		jeonseRatio float64
		wantLen     int
		contains    string
	}{
		{"safe and eligible", model.RiskLevelSafe, true, 0.5, 2, "HUG 보증보험 가입을 권장합니다"},
		{"caution adds registry recheck", model.RiskLevelCaution, true, 0.5, 4, "등기부등본 재확인 권장 (최근 3개월 이내)"},
		{"risky ineligible high ratio", model.RiskLevelRisky, false, 0.9, 5, "전세가율이 높으므로 월세 전환 또는 보증금 인하 협상 검토"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := Recommendations(tt.level, tt.hugEligible, tt.jeonseRatio)
			assert.Len(t, recs, tt.wantLen)
			assert.Contains(t, recs, tt.contains)
			// Legal counsel advice always closes the list.
			assert.Equal(t, "계약 전 법무사 자문을 통한 권리 관계 검토 권장", recs[len(recs)-1])
		})
	}
}
