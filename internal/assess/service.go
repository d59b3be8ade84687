// Package assess orchestrates the full risk pipeline for one request:
// resolve → extract → price → features → score → synthesize → persist.
package assess

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/cache"
	"github.com/daru-lab/jeonseguard/internal/document"
	"github.com/daru-lab/jeonseguard/internal/feature"
	"github.com/daru-lab/jeonseguard/internal/model"
	"github.com/daru-lab/jeonseguard/internal/price"
	"github.com/daru-lab/jeonseguard/internal/risk"
	"github.com/daru-lab/jeonseguard/internal/scoring"
	"github.com/daru-lab/jeonseguard/internal/store"
)

// ErrNoAddress is returned when neither the request nor the documents carry
// a usable address.
var ErrNoAddress = eris.New("assess: no address in request or documents")

// Request is one assessment job. Ledger and Registry are optional extracted
// document trees; Address may be empty when the documents carry one.
type Request struct {
	Address       string
	DepositManwon float64
	Ledger        map[string]any
	Registry      map[string]any
}

// Service wires the pipeline stages together.
type Service struct {
	resolver   *address.Resolver
	extractor  *document.Extractor
	estimator  *price.Estimator
	calculator *feature.Calculator
	engine     *scoring.Engine
	store      store.Store
	cache      *cache.ResultCache
	now        func() time.Time
}

// New creates a Service. The cache may be nil (disabled).
func New(resolver *address.Resolver, extractor *document.Extractor, estimator *price.Estimator,
	calculator *feature.Calculator, engine *scoring.Engine, st store.Store, rc *cache.ResultCache) *Service {
	return &Service{
		resolver:   resolver,
		extractor:  extractor,
		estimator:  estimator,
		calculator: calculator,
		engine:     engine,
		store:      st,
		cache:      rc,
		now:        time.Now,
	}
}

// NewAt pins the clock for deterministic tests.
func NewAt(resolver *address.Resolver, extractor *document.Extractor, estimator *price.Estimator,
	calculator *feature.Calculator, engine *scoring.Engine, st store.Store, rc *cache.ResultCache,
	now func() time.Time) *Service {
	s := New(resolver, extractor, estimator, calculator, engine, st, rc)
	s.now = now
	return s
}

// Assess runs the pipeline end to end. Address resolution failures and a
// fully exhausted price chain abort the request with typed errors; everything
// else degrades to documented defaults. Persistence failure never fails the
// request, it only clears the Persisted flag.
func (s *Service) Assess(ctx context.Context, req Request) (*model.Assessment, error) {
	addr := strings.TrimSpace(req.Address)
	if addr == "" {
		addr = document.ExtractAddress(req.Ledger, req.Registry)
	}
	if addr == "" {
		return nil, ErrNoAddress
	}

	cacheKey := cache.Key(addr, req.DepositManwon)
	if hit := s.cache.Get(ctx, cacheKey); hit != nil {
		zap.L().Debug("assess: cache hit", zap.String("address_key", hit.AddressKey))
		return hit, nil
	}

	key, err := s.resolver.Resolve(ctx, addr)
	if err != nil {
		return nil, err
	}

	docs := s.extractor.Extract(req.Ledger, req.Registry)
	building := s.lookupBuilding(ctx, key, addr, docs)

	in, area, publicWon := s.mergeInputs(req.DepositManwon, docs, building)
	if publicWon <= 0 {
		if won, err := s.estimator.PublicPrice(ctx, key, area); err == nil {
			publicWon = won
		}
	}

	quote, err := s.estimator.Estimate(ctx, key, area)
	if err != nil {
		if !errors.Is(err, price.ErrNoMarketPrice) {
			return nil, err
		}
		// The registry price table can know an assessed price the price
		// store does not; substitute the statutory estimate before failing.
		if publicWon <= 0 {
			return nil, err
		}
		quote = model.PriceQuote{
			AmountManwon: publicWon / 10000 * 1.26,
			Source:       model.SourcePublicEstimate,
		}
	}

	in.MarketPriceManwon = quote.AmountManwon
	in.PublicPriceWon = publicWon
	vec := s.calculator.Calculate(in)

	prob, path := s.engine.Score(vec)
	level := scoring.Classify(prob)
	hug := risk.HUGEligibility(publicWon, req.DepositManwon, vec.JeonseRatio)
	factors := risk.Analyze(vec, docs.RealDebtManwon, hug.Eligible)
	recs := risk.Recommendations(level, hug.Eligible, vec.JeonseRatio)

	analyzedAt := s.now()
	assessment := &model.Assessment{
		ID:          uuid.New().String(),
		Address:     address.Normalize(addr),
		AddressKey:  key.AddressKey(),
		DepositWon:  int64(req.DepositManwon * 10000),
		MarketWon:   int64(quote.AmountManwon * 10000),
		PriceSource: quote.Source,

		RiskScore:   math.Round(prob*1000) / 10,
		RiskLevel:   level,
		RiskFactors: factors,

		HUG:             hug,
		Recommendations: recs,
		ScoringPath:     path,

		Details: model.AssessmentDetails{
			JeonseRatio:             math.Round(vec.JeonseRatio*1000) / 10,
			SeniorDebtWon:           int64(docs.RealDebtManwon * 10000),
			IsIllegalBuilding:       in.IsIllegal,
			IsTrust:                 in.IsTrustOwner,
			BuildingAge:             vec.BuildingAge,
			OwnershipDurationMonths: docs.OwnershipDurationMonths,
		},

		Persisted:  true,
		AnalyzedAt: analyzedAt,
	}

	record := model.AssessmentRecord{
		AddressKey:         key.AddressKey(),
		UsedRentPrice:      req.DepositManwon,
		UsedMarketPrice:    quote.AmountManwon,
		JeonseRatio:        vec.JeonseRatio,
		HUGSafeLimit:       float64(hug.SafeLimitWon) / 10000,
		HUGRiskRatio:       vec.HUGRiskRatio,
		TotalRiskRatio:     vec.TotalRiskRatio,
		EstimatedLoanRatio: vec.EstimatedLoanRatio,
		RiskLevel:          level,
		RiskScore:          int(math.Round(prob * 100)),
		AIRiskProb:         prob,
		ScoringPath:        path,
		AnalyzedAt:         analyzedAt,
	}
	if building != nil {
		record.BuildingInfoID = building.ID
	}
	if err := s.store.SaveAssessment(ctx, record); err != nil {
		zap.L().Error("assess: result not persisted",
			zap.String("address_key", record.AddressKey), zap.Error(err))
		assessment.Persisted = false
	}

	s.cache.Set(ctx, cacheKey, assessment)
	return assessment, nil
}

// lookupBuilding tries the registry by parcel first, then by address text.
// Missing registry data is not an error; the calculator has defaults for
// everything the registry would have supplied.
func (s *Service) lookupBuilding(ctx context.Context, key address.ParcelKey, addr string, docs document.Features) *model.BuildingInfo {
	if docs.UniqueNumber != "" {
		if parsed, err := address.ParsePNU(docs.UniqueNumber); err == nil && parsed.Valid() {
			key = parsed
		}
	}
	// Ledger unique numbers carry their own middle segment between the
	// district code and the lot digits, so match around it.
	pattern := key.DistrictCode + key.SubDistrictCode + "%" + key.MainLot + key.SubLot + "%"
	b, err := s.store.BuildingByParcel(ctx, pattern)
	if err != nil {
		zap.L().Warn("assess: building lookup failed", zap.Error(err))
		return nil
	}
	if b != nil {
		return b
	}
	normalized := address.Normalize(addr)
	b, err = s.store.BuildingByAddress(ctx, normalized, normalized)
	if err != nil {
		zap.L().Warn("assess: building address lookup failed", zap.Error(err))
		return nil
	}
	return b
}

// mergeInputs combines document-extracted features with registry data.
// Documents win on conflicts; the registry fills gaps.
func (s *Service) mergeInputs(depositManwon float64, docs document.Features, b *model.BuildingInfo) (feature.Inputs, *float64, float64) {
	in := feature.Inputs{
		DepositManwon:    depositManwon,
		SeniorDebtManwon: docs.RealDebtManwon,

		MainUse:           docs.MainUse,
		UsageApprovalDate: docs.UsageApprovalDate,
		IsIllegal:         docs.IsIllegal,
		IsTrustOwner:      docs.IsTrustOwner,
		ShortTermWeight:   docs.ShortTermWeight,
	}

	area := docs.AreaSize
	var publicWon float64

	if b != nil {
		if in.MainUse == "" {
			in.MainUse = b.MainUse
		}
		if in.UsageApprovalDate == "" {
			in.UsageApprovalDate = b.UseApprovalDay
		}
		if area == nil && b.ExclusiveArea != nil {
			area = b.ExclusiveArea
		}
		in.IsIllegal = in.IsIllegal || b.IsViolating
		if strings.Contains(b.OwnerName, "신탁") {
			in.IsTrustOwner = true
		}
		if in.ShortTermWeight == 0 && b.OwnershipChangedDate != "" {
			if changed, ok := document.ParseFlexibleDate(b.OwnershipChangedDate); ok {
				days := int(s.now().Sub(changed).Hours() / 24)
				in.ShortTermWeight = document.ShortTermWeight(days)
			}
		}
		in.ParkingCount = b.ParkingCount
		in.HouseholdCount = b.HouseholdCount
		publicWon = b.PublicPriceWon
	}

	return in, area, publicWon
}
