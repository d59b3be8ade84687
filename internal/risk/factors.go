// Package risk synthesizes explainable risk factors, deposit-insurance
// eligibility and recommended actions from a computed feature vector.
package risk

import (
	"fmt"

	"github.com/daru-lab/jeonseguard/internal/feature"
	"github.com/daru-lab/jeonseguard/internal/model"
)

// Analyze evaluates each factor independently in fixed precedence order and
// returns the triggered set. Callers never receive an empty list: when
// nothing triggers, a single NONE/LOW sentinel is returned.
func Analyze(v feature.Vector, realDebtManwon float64, hugEligible bool) []model.RiskFactor {
	var factors []model.RiskFactor

	if !hugEligible {
		factors = append(factors, model.RiskFactor{
			Type:     model.FactorHUGIneligible,
			Severity: model.SeverityCritical,
			Message:  "HUG 전세보증금 반환보증 가입 불가",
		})
	}

	if v.JeonseRatio > 0.8 {
		factors = append(factors, model.RiskFactor{
			Type:     model.FactorHighLTV,
			Severity: model.SeverityHigh,
			Message:  fmt.Sprintf("전세가율이 %.1f%%로 매우 높음 (깡통전세 위험)", v.JeonseRatio*100),
		})
	} else if v.JeonseRatio > 0.7 {
		factors = append(factors, model.RiskFactor{
			Type:     model.FactorHighLTV,
			Severity: model.SeverityMedium,
			Message:  fmt.Sprintf("전세가율이 %.1f%%로 다소 높음", v.JeonseRatio*100),
		})
	}

	if realDebtManwon > 0 {
		factors = append(factors, model.RiskFactor{
			Type:     model.FactorSeniorDebt,
			Severity: model.SeverityHigh,
			Message:  fmt.Sprintf("선순위 채권 %s만원 존재 (보증금 회수 우선순위 낮음)", groupDigits(realDebtManwon)),
		})
	}

	if v.IsIllegal > 0 {
		factors = append(factors, model.RiskFactor{
			Type:     model.FactorIllegalBuilding,
			Severity: model.SeverityHigh,
			Message:  "위반 건축물로 등재됨 (법적 제재 가능)",
		})
	}

	if v.IsTrustOwner > 0 {
		factors = append(factors, model.RiskFactor{
			Type:     model.FactorTrustProperty,
			Severity: model.SeverityMedium,
			Message:  "신탁 부동산으로 권리 관계가 복잡할 수 있음",
		})
	}

	if v.ShortTermWeight > 0 {
		severity := model.SeverityMedium
		if v.ShortTermWeight >= 0.3 {
			severity = model.SeverityHigh
		}
		factors = append(factors, model.RiskFactor{
			Type:     model.FactorShortOwnership,
			Severity: severity,
			Message:  "건물 소유 기간이 짧음 (투기 의심)",
		})
	}

	if v.BuildingAge > 30 {
		factors = append(factors, model.RiskFactor{
			Type:     model.FactorOldBuilding,
			Severity: model.SeverityLow,
			Message:  fmt.Sprintf("건물 연식 %.0f년으로 노후화됨", v.BuildingAge),
		})
	}

	if len(factors) == 0 {
		factors = append(factors, model.RiskFactor{
			Type:     model.FactorNone,
			Severity: model.SeverityLow,
			Message:  "특이한 위험 요인이 발견되지 않았습니다",
		})
	}

	return factors
}

// Recommendations builds the ordered action list for the caller.
func Recommendations(level model.RiskLevel, hugEligible bool, jeonseRatio float64) []string {
	var recs []string

	if hugEligible {
		recs = append(recs, "HUG 보증보험 가입을 권장합니다")
	} else {
		recs = append(recs, "HUG 보증보험 가입이 불가하므로 계약 재검토를 권장합니다")
	}

	if level == model.RiskLevelCaution || level == model.RiskLevelRisky {
		recs = append(recs,
			"등기부등본 재확인 권장 (최근 3개월 이내)",
			"임대인의 재정 상태 및 다른 채무 여부 확인 필요",
		)
	}

	if jeonseRatio > 0.75 {
		recs = append(recs, "전세가율이 높으므로 월세 전환 또는 보증금 인하 협상 검토")
	}

	recs = append(recs, "계약 전 법무사 자문을 통한 권리 관계 검토 권장")

	return recs
}

// groupDigits formats a rounded amount with thousands separators.
func groupDigits(amount float64) string {
	n := int64(amount + 0.5)
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}
