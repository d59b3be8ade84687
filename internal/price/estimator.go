// Package price resolves a market price estimate for a parcel through a
// prioritized fallback chain over observed transactions, jeonse deposits and
// government-assessed prices.
package price

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/model"
	"github.com/daru-lab/jeonseguard/internal/store"
)

// hugMultiplier converts an assessed price into the deposit-insurance
// program's market estimate. Statutory constant.
const hugMultiplier = 1.26

// pyeong is one Korean floor-area unit in square meters, used as the
// assessed-price area-match tolerance.
const pyeong = 3.3

// ErrNoMarketPrice is returned when no pricing tier yields a usable value.
// Callers must fail the assessment rather than score against a zero price.
var ErrNoMarketPrice = eris.New("price: no usable market price for parcel")

// Collector triggers an on-demand refresh of the external transaction
// datasets for one sub-district. Implementations must be idempotent per day.
type Collector interface {
	Collect(ctx context.Context, key address.ParcelKey) error
}

// Estimator resolves market prices. The collector is optional; when nil the
// on-demand refresh step is skipped.
type Estimator struct {
	store     store.Store
	collector Collector
}

// NewEstimator creates an Estimator over the given store.
func NewEstimator(st store.Store, collector Collector) *Estimator {
	return &Estimator{store: st, collector: collector}
}

// Estimate resolves the market price for a parcel in manwon. The fallback
// chain is tried in order, each step only when the prior produced nothing:
//
//  1. latest observed sale, area-filtered to ±3 when an area is given
//  2. on-demand collection for the sub-district, then retry step 1
//  3. latest pure-jeonse deposit as a conservative proxy
//  4. assessed price × 1.26
//
// A chain that bottoms out returns (zero quote, ErrNoMarketPrice).
func (e *Estimator) Estimate(ctx context.Context, key address.ParcelKey, area *float64) (model.PriceQuote, error) {
	if trade, err := e.store.LatestTrade(ctx, key, area); err != nil {
		return model.PriceQuote{Source: model.SourceUnknown}, err
	} else if trade != nil {
		return model.PriceQuote{AmountManwon: trade.PriceManwon, Source: model.SourceTrade}, nil
	}

	if e.collector != nil {
		if err := e.collector.Collect(ctx, key); err != nil {
			// Collection failure degrades to the remaining tiers.
			zap.L().Warn("price: on-demand collection failed",
				zap.String("pnu", key.PNU()), zap.Error(err))
		} else if trade, err := e.store.LatestTrade(ctx, key, area); err != nil {
			return model.PriceQuote{Source: model.SourceUnknown}, err
		} else if trade != nil {
			return model.PriceQuote{AmountManwon: trade.PriceManwon, Source: model.SourceTrade}, nil
		}
	}

	if rent, err := e.store.LatestRent(ctx, key, area); err != nil {
		return model.PriceQuote{Source: model.SourceUnknown}, err
	} else if rent != nil && rent.DepositManwon > 0 {
		return model.PriceQuote{AmountManwon: rent.DepositManwon, Source: model.SourceRent}, nil
	}

	if publicWon, err := e.PublicPrice(ctx, key, area); err != nil {
		return model.PriceQuote{Source: model.SourceUnknown}, err
	} else if publicWon > 0 {
		return model.PriceQuote{
			AmountManwon: publicWon / 10000 * hugMultiplier,
			Source:       model.SourcePublicEstimate,
		}, nil
	}

	zap.L().Info("price: no usable market price", zap.String("pnu", key.PNU()))
	return model.PriceQuote{Source: model.SourceUnknown}, ErrNoMarketPrice
}

// PublicPrice returns the assessed (government-published) price in won, or 0
// when none is recorded. With multiple valuation rows the one area-matched to
// within a pyeong wins; otherwise the most recent base year.
func (e *Estimator) PublicPrice(ctx context.Context, key address.ParcelKey, area *float64) (float64, error) {
	rows, err := e.store.PublicPrices(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if area != nil {
		for _, r := range rows {
			if r.ExclusiveArea != nil && math.Abs(*r.ExclusiveArea-*area) <= pyeong {
				return r.PriceWon, nil
			}
		}
	}
	// Rows arrive ordered base_year DESC.
	return rows[0].PriceWon, nil
}
