package assess

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/document"
	"github.com/daru-lab/jeonseguard/internal/feature"
	"github.com/daru-lab/jeonseguard/internal/model"
	"github.com/daru-lab/jeonseguard/internal/price"
	"github.com/daru-lab/jeonseguard/internal/scoring"
)

var serviceNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	trade    *model.TradeRecord
	rent     *model.RentRecord
	public   []model.PublicPriceRecord
	building *model.BuildingInfo

	saveErr error
	saved   []model.AssessmentRecord
}

func (f *fakeStore) LatestTrade(ctx context.Context, key address.ParcelKey, area *float64) (*model.TradeRecord, error) {
	return f.trade, nil
}

func (f *fakeStore) LatestRent(ctx context.Context, key address.ParcelKey, area *float64) (*model.RentRecord, error) {
	return f.rent, nil
}

func (f *fakeStore) PublicPrices(ctx context.Context, key address.ParcelKey) ([]model.PublicPriceRecord, error) {
	return f.public, nil
}

func (f *fakeStore) BuildingByParcel(ctx context.Context, pattern string) (*model.BuildingInfo, error) {
	return f.building, nil
}

func (f *fakeStore) BuildingByAddress(ctx context.Context, roadAddr, lotAddr string) (*model.BuildingInfo, error) {
	return nil, nil
}

func (f *fakeStore) CollectedToday(ctx context.Context, districtCode, yearMonth string, dataType model.CollectionDataType) (bool, error) {
	return false, nil
}

func (f *fakeStore) MarkCollected(ctx context.Context, districtCode, yearMonth string, dataType model.CollectionDataType) error {
	return nil
}

func (f *fakeStore) InsertTrades(ctx context.Context, rows []model.TradeRecord) error { return nil }
func (f *fakeStore) InsertRents(ctx context.Context, rows []model.RentRecord) error   { return nil }

func (f *fakeStore) SaveAssessment(ctx context.Context, rec model.AssessmentRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStore) LatestAssessment(ctx context.Context, addressKey string) (*model.AssessmentRecord, error) {
	return nil, nil
}

func (f *fakeStore) Migrate(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                      { return nil }

func testResolver() *address.Resolver {
	return address.NewResolver(address.TableLoaderFunc(func(ctx context.Context) (map[string]string, error) {
		return map[string]string{"서울특별시 종로구 청운동": "1111010100"}, nil
	}))
}

func newTestService(st *fakeStore) *Service {
	return NewAt(
		testResolver(),
		document.NewAt(serviceNow),
		price.NewEstimator(st, nil),
		feature.NewCalculatorAt(feature.DefaultKeywordTable(), serviceNow),
		scoring.NewEngine(""),
		st,
		nil,
		func() time.Time { return serviceNow },
	)
}

func TestAssessEndToEnd(t *testing.T) {
	st := &fakeStore{
		trade:    &model.TradeRecord{PriceManwon: 30000},
		building: &model.BuildingInfo{ID: 7, MainUse: "아파트", PublicPriceWon: 500_000_000},
	}
	svc := newTestService(st)

	got, err := svc.Assess(context.Background(), Request{
		Address:       "서울 종로구 청운동 1-2",
		DepositManwon: 24000,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "서울특별시 종로구 청운동 1-2", got.Address)
	assert.Equal(t, int64(240_000_000), got.DepositWon)
	assert.Equal(t, int64(300_000_000), got.MarketWon)
	assert.Equal(t, model.SourceTrade, got.PriceSource)

	// jeonse ratio 24000/30000 = 0.8 trips the rule floor of 0.8.
	assert.Equal(t, 80.0, got.RiskScore)
	assert.Equal(t, model.RiskLevelRisky, got.RiskLevel)
	assert.Equal(t, model.ScoredByRules, got.ScoringPath)
	assert.Equal(t, 80.0, got.Details.JeonseRatio)

	// ceiling 500M × 1.26 = 630M won = 63,000 manwon > deposit
	assert.True(t, got.HUG.Eligible)
	assert.Equal(t, int64(630_000_000), got.HUG.SafeLimitWon)

	assert.NotEmpty(t, got.RiskFactors)
	assert.NotEmpty(t, got.Recommendations)
	assert.True(t, got.Persisted)
	assert.Equal(t, serviceNow, got.AnalyzedAt)

	require.Len(t, st.saved, 1)
	rec := st.saved[0]
	assert.Equal(t, got.AddressKey, rec.AddressKey)
	assert.Equal(t, int64(7), rec.BuildingInfoID)
	assert.Equal(t, 24000.0, rec.UsedRentPrice)
	assert.Equal(t, 30000.0, rec.UsedMarketPrice)
	assert.InDelta(t, 0.8, rec.JeonseRatio, 1e-9)
	assert.Equal(t, 63000.0, rec.HUGSafeLimit)
	assert.Equal(t, 80, rec.RiskScore)
	assert.Equal(t, model.RiskLevelRisky, rec.RiskLevel)
}

func TestAssessPersistenceFailureDoesNotFail(t *testing.T) {
	st := &fakeStore{
		trade:   &model.TradeRecord{PriceManwon: 50000},
		saveErr: eris.New("db down"),
	}
	svc := newTestService(st)

	got, err := svc.Assess(context.Background(), Request{
		Address:       "서울 종로구 청운동 1-2",
		DepositManwon: 10000,
	})
	require.NoError(t, err)
	assert.False(t, got.Persisted)
	assert.Equal(t, model.RiskLevelSafe, got.RiskLevel)
}

func TestAssessNoAddress(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.Assess(context.Background(), Request{DepositManwon: 10000})
	require.ErrorIs(t, err, ErrNoAddress)
}

func TestAssessAddressFromDocuments(t *testing.T) {
	st := &fakeStore{trade: &model.TradeRecord{PriceManwon: 40000}}
	svc := newTestService(st)

	got, err := svc.Assess(context.Background(), Request{
		DepositManwon: 10000,
		Registry: map[string]any{
			"basic_info": map[string]any{"address": "서울 종로구 청운동 1-2"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "서울특별시 종로구 청운동 1-2", got.Address)
}

func TestAssessSubstitutesRegistryPublicPrice(t *testing.T) {
	// No trade, rent or collected public price, but the building registry
	// knows an assessed price: the statutory estimate replaces the failure.
	st := &fakeStore{building: &model.BuildingInfo{PublicPriceWon: 200_000_000}}
	svc := newTestService(st)

	got, err := svc.Assess(context.Background(), Request{
		Address:       "서울 종로구 청운동 1-2",
		DepositManwon: 10000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SourcePublicEstimate, got.PriceSource)
	assert.Equal(t, int64(252_000_000), got.MarketWon)
	assert.Equal(t, model.RiskLevelSafe, got.RiskLevel)
	assert.True(t, got.HUG.Eligible)
}

func TestAssessNoMarketPrice(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.Assess(context.Background(), Request{
		Address:       "서울 종로구 청운동 1-2",
		DepositManwon: 10000,
	})
	require.ErrorIs(t, err, price.ErrNoMarketPrice)
}

func TestAssessTrustOwnerFromBuilding(t *testing.T) {
	st := &fakeStore{
		trade: &model.TradeRecord{PriceManwon: 40000},
		building: &model.BuildingInfo{
			OwnerName:            "한국자산신탁",
			OwnershipChangedDate: "2025.5.2",
		},
	}
	svc := newTestService(st)

	got, err := svc.Assess(context.Background(), Request{
		Address:       "서울 종로구 청운동 1-2",
		DepositManwon: 10000,
	})
	require.NoError(t, err)
	assert.True(t, got.Details.IsTrust)

	types := make([]model.RiskFactorType, 0, len(got.RiskFactors))
	for _, f := range got.RiskFactors {
		types = append(types, f.Type)
	}
	// trust owner plus 30 days of ownership triggers both factors and the
	// combined rule floor of 0.6.
	assert.Contains(t, types, model.FactorTrustProperty)
	assert.Contains(t, types, model.FactorShortOwnership)
	assert.Equal(t, model.RiskLevelCaution, got.RiskLevel)
	assert.Equal(t, 60.0, got.RiskScore)
}
