package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daru-lab/jeonseguard/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLiteMigrateIdempotent(t *testing.T) {
	st := newSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLiteTradeRoundTrip(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	older := model.TradeRecord{
		DistrictCode: "11110", SubDistrictCode: "10100", MainLot: "0001", SubLot: "0002",
		ExclusiveArea: 59.8, PriceManwon: 28000,
		ContractDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := older
	newer.PriceManwon = 30000
	newer.ContractDate = time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.InsertTrades(ctx, []model.TradeRecord{older, newer}))
	// Re-inserting the same rows must be a silent no-op.
	require.NoError(t, st.InsertTrades(ctx, []model.TradeRecord{older, newer}))

	got, err := st.LatestTrade(ctx, storeKey(), nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 30000.0, got.PriceManwon)
	assert.Equal(t, newer.ContractDate, got.ContractDate)
}

func TestSQLiteTradeAreaFilter(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertTrades(ctx, []model.TradeRecord{{
		DistrictCode: "11110", SubDistrictCode: "10100", MainLot: "0001", SubLot: "0002",
		ExclusiveArea: 84.9, PriceManwon: 52000,
		ContractDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}}))

	near := 84.0
	got, err := st.LatestTrade(ctx, storeKey(), &near)
	require.NoError(t, err)
	require.NotNil(t, got)

	far := 59.8
	got, err = st.LatestTrade(ctx, storeKey(), &far)
	require.NoError(t, err)
	assert.Nil(t, got, "areas outside the tolerance band must not match")
}

func TestSQLiteRentFiltersMonthlyRent(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	rents := []model.RentRecord{
		{
			DistrictCode: "11110", SubDistrictCode: "10100", MainLot: "0001", SubLot: "0002",
			ExclusiveArea: 59.8, DepositManwon: 24000, MonthlyRent: 0,
			ContractDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			// Newer but a monthly-rent contract, so not a jeonse proxy.
			DistrictCode: "11110", SubDistrictCode: "10100", MainLot: "0001", SubLot: "0002",
			ExclusiveArea: 59.8, DepositManwon: 5000, MonthlyRent: 120,
			ContractDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, st.InsertRents(ctx, rents))

	got, err := st.LatestRent(ctx, storeKey(), nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 24000.0, got.DepositManwon)
}

func TestSQLitePublicPricesEmpty(t *testing.T) {
	st := newSQLiteStore(t)
	rows, err := st.PublicPrices(context.Background(), storeKey())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLiteBuildingByParcelNotFound(t *testing.T) {
	st := newSQLiteStore(t)
	b, err := st.BuildingByParcel(context.Background(), "111101010%00010002%")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestSQLiteCollectionLog(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	done, err := st.CollectedToday(ctx, "11110", "202506", model.CollectTrade)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, st.MarkCollected(ctx, "11110", "202506", model.CollectTrade))
	// Marking again refreshes the timestamp instead of failing.
	require.NoError(t, st.MarkCollected(ctx, "11110", "202506", model.CollectTrade))

	done, err = st.CollectedToday(ctx, "11110", "202506", model.CollectTrade)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = st.CollectedToday(ctx, "11110", "202506", model.CollectRent)
	require.NoError(t, err)
	assert.False(t, done, "data types are tracked independently")
}

func TestSQLiteAssessmentReplace(t *testing.T) {
	st := newSQLiteStore(t)
	ctx := context.Background()

	first := model.AssessmentRecord{
		AddressKey: "11110-10100-0001-0002", UsedRentPrice: 24000, UsedMarketPrice: 30000,
		JeonseRatio: 0.8, RiskLevel: model.RiskLevelRisky, RiskScore: 80, AIRiskProb: 0.8,
		ScoringPath: model.ScoredByRules,
		AnalyzedAt:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.SaveAssessment(ctx, first))

	second := first
	second.UsedMarketPrice = 32000
	second.JeonseRatio = 0.75
	second.RiskLevel = model.RiskLevelCaution
	second.RiskScore = 50
	second.AnalyzedAt = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveAssessment(ctx, second))

	got, err := st.LatestAssessment(ctx, first.AddressKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.RiskLevelCaution, got.RiskLevel)
	assert.Equal(t, 50, got.RiskScore)
	assert.Equal(t, 32000.0, got.UsedMarketPrice)
	assert.Equal(t, second.AnalyzedAt, got.AnalyzedAt)
}

func TestSQLiteLatestAssessmentNotFound(t *testing.T) {
	st := newSQLiteStore(t)
	got, err := st.LatestAssessment(context.Background(), "no-such-key")
	require.NoError(t, err)
	assert.Nil(t, got)
}
