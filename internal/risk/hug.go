package risk

import (
	"fmt"
	"math"

	"github.com/daru-lab/jeonseguard/internal/model"
)

// hugMultiplier is the statutory guarantee ceiling multiplier applied to the
// assessed (public) price.
const hugMultiplier = 1.26

// HUGEligibility determines whether the deposit fits under the
// government-backed guarantee ceiling. publicPriceWon is the assessed price
// in won; deposit is in manwon. Without an assessed price no determination is
// possible and the contract is treated as ineligible.
func HUGEligibility(publicPriceWon, depositManwon, jeonseRatio float64) model.HUGResult {
	if publicPriceWon <= 0 {
		return model.HUGResult{
			Eligible: false,
			Message:  "공시가 없음 (판단 불가)",
			Reason:   "공시가격 데이터 없음",
		}
	}

	limitWon := publicPriceWon * hugMultiplier
	limitManwon := limitWon / 10000

	res := model.HUGResult{
		SafeLimitWon: int64(math.Round(limitWon)),
	}
	if depositManwon > 0 {
		covered := math.Min(limitManwon, depositManwon)
		res.CoverageRatio = math.Round(covered/depositManwon*1000) / 10
	}

	if depositManwon <= limitManwon {
		res.Eligible = true
		res.Message = "가입 가능 (안전)"
		return res
	}

	res.Message = "가입 불가 (위험)"
	if jeonseRatio > 0.8 {
		res.Reason = fmt.Sprintf("전세가율 %.1f%% 초과 (기준: 80%%)", jeonseRatio*100)
	} else {
		res.Reason = "기타 심사 기준 미달"
	}
	return res
}
