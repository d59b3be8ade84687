package price

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/model"
)

// fakeStore implements store.Store with canned price rows. tradeAfterCollect
// is swapped in once Collect has been called, simulating an on-demand refresh
// landing new rows.
type fakeStore struct {
	trade             *model.TradeRecord
	tradeAfterCollect *model.TradeRecord
	rent              *model.RentRecord
	public            []model.PublicPriceRecord

	collected   bool
	tradeCalls  int
	rentCalls   int
	publicCalls int
}

func (f *fakeStore) LatestTrade(ctx context.Context, key address.ParcelKey, area *float64) (*model.TradeRecord, error) {
	f.tradeCalls++
	if f.collected && f.tradeAfterCollect != nil {
		return f.tradeAfterCollect, nil
	}
	return f.trade, nil
}

func (f *fakeStore) LatestRent(ctx context.Context, key address.ParcelKey, area *float64) (*model.RentRecord, error) {
	f.rentCalls++
	return f.rent, nil
}

func (f *fakeStore) PublicPrices(ctx context.Context, key address.ParcelKey) ([]model.PublicPriceRecord, error) {
	f.publicCalls++
	return f.public, nil
}

func (f *fakeStore) BuildingByParcel(ctx context.Context, pattern string) (*model.BuildingInfo, error) {
	return nil, nil
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

func (f *fakeStore) SaveAssessment(ctx context.Context, rec model.AssessmentRecord) error { return nil }
func (f *fakeStore) LatestAssessment(ctx context.Context, addressKey string) (*model.AssessmentRecord, error) {
	return nil, nil
}

func (f *fakeStore) Migrate(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                      { return nil }

type fakeCollector struct {
	store *fakeStore
	err   error
	calls int
}

func (c *fakeCollector) Collect(ctx context.Context, key address.ParcelKey) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	c.store.collected = true
	return nil
}

func testKey() address.ParcelKey {
	return address.ParcelKey{
		DistrictCode:    "11110",
		SubDistrictCode: "10100",
		MainLot:         "0001",
		SubLot:          "0002",
	}
}

func TestEstimateUsesLatestTradeFirst(t *testing.T) {
	st := &fakeStore{trade: &model.TradeRecord{PriceManwon: 30000}}
	e := NewEstimator(st, nil)

	quote, err := e.Estimate(context.Background(), testKey(), nil)
	require.NoError(t, err)
	assert.Equal(t, 30000.0, quote.AmountManwon)
	assert.Equal(t, model.SourceTrade, quote.Source)
	assert.Equal(t, 0, st.rentCalls)
	assert.Equal(t, 0, st.publicCalls)
}

func TestEstimateCollectsOnDemandThenRetries(t *testing.T) {
	st := &fakeStore{tradeAfterCollect: &model.TradeRecord{PriceManwon: 28500}}
	col := &fakeCollector{store: st}
	e := NewEstimator(st, col)

	quote, err := e.Estimate(context.Background(), testKey(), nil)
	require.NoError(t, err)
	assert.Equal(t, 28500.0, quote.AmountManwon)
	assert.Equal(t, model.SourceTrade, quote.Source)
	assert.Equal(t, 1, col.calls)
	assert.Equal(t, 2, st.tradeCalls)
}

func TestEstimateCollectFailureDegradesToRent(t *testing.T) {
	st := &fakeStore{rent: &model.RentRecord{DepositManwon: 24000}}
	col := &fakeCollector{store: st, err: eris.New("api down")}
	e := NewEstimator(st, col)

	quote, err := e.Estimate(context.Background(), testKey(), nil)
	require.NoError(t, err)
	assert.Equal(t, 24000.0, quote.AmountManwon)
	assert.Equal(t, model.SourceRent, quote.Source)
}

func TestEstimateSkipsZeroDepositRent(t *testing.T) {
	st := &fakeStore{
		rent:   &model.RentRecord{DepositManwon: 0},
		public: []model.PublicPriceRecord{{PriceWon: 200_000_000, BaseYear: 2025}},
	}
	e := NewEstimator(st, nil)

	quote, err := e.Estimate(context.Background(), testKey(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.SourcePublicEstimate, quote.Source)
}

func TestEstimateFallsBackToPublicEstimate(t *testing.T) {
	st := &fakeStore{public: []model.PublicPriceRecord{{PriceWon: 200_000_000, BaseYear: 2025}}}
	e := NewEstimator(st, nil)

	quote, err := e.Estimate(context.Background(), testKey(), nil)
	require.NoError(t, err)
	// 200M won / 10000 * 1.26 = 25,200 manwon
	assert.InDelta(t, 25200, quote.AmountManwon, 1e-9)
	assert.Equal(t, model.SourcePublicEstimate, quote.Source)
}

func TestEstimateExhaustedChain(t *testing.T) {
	st := &fakeStore{}
	e := NewEstimator(st, nil)

	quote, err := e.Estimate(context.Background(), testKey(), nil)
	require.ErrorIs(t, err, ErrNoMarketPrice)
	assert.Equal(t, model.SourceUnknown, quote.Source)
	assert.Zero(t, quote.AmountManwon)
}

func TestPublicPriceAreaMatch(t *testing.T) {
	small, large := 40.0, 84.9
	st := &fakeStore{public: []model.PublicPriceRecord{
		{PriceWon: 500_000_000, ExclusiveArea: &large, BaseYear: 2025},
		{PriceWon: 250_000_000, ExclusiveArea: &small, BaseYear: 2024},
	}}
	e := NewEstimator(st, nil)

	area := 42.0 // within one pyeong of the 40.0 row
	won, err := e.PublicPrice(context.Background(), testKey(), &area)
	require.NoError(t, err)
	assert.Equal(t, 250_000_000.0, won)

	// No area given: most recent base year wins.
	won, err = e.PublicPrice(context.Background(), testKey(), nil)
	require.NoError(t, err)
	assert.Equal(t, 500_000_000.0, won)

	// Area given but nothing within tolerance: most recent base year.
	far := 60.0
	won, err = e.PublicPrice(context.Background(), testKey(), &far)
	require.NoError(t, err)
	assert.Equal(t, 500_000_000.0, won)
}

func TestPublicPriceEmpty(t *testing.T) {
	e := NewEstimator(&fakeStore{}, nil)
	won, err := e.PublicPrice(context.Background(), testKey(), nil)
	require.NoError(t, err)
	assert.Zero(t, won)
}
