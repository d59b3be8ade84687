// Package store persists and queries the pricing, building-registry and
// assessment tables behind the risk pipeline. Two backends are provided:
// Postgres (production) and SQLite (local development and CI).
package store

import (
	"context"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/model"
)

// Store is the persistence interface consumed by the pipeline. All lookups
// are read-only filter-by-parcel, order-by-recency queries; the only writes
// are collected price rows, the collection log and the assessment upsert.
type Store interface {
	// Price history
	LatestTrade(ctx context.Context, key address.ParcelKey, area *float64) (*model.TradeRecord, error)
	LatestRent(ctx context.Context, key address.ParcelKey, area *float64) (*model.RentRecord, error)
	PublicPrices(ctx context.Context, key address.ParcelKey) ([]model.PublicPriceRecord, error)

	// Building registry
	BuildingByParcel(ctx context.Context, pnu string) (*model.BuildingInfo, error)
	BuildingByAddress(ctx context.Context, roadAddr, lotAddr string) (*model.BuildingInfo, error)

	// Collection log (idempotence guard for on-demand fetches)
	CollectedToday(ctx context.Context, districtCode, yearMonth string, dataType model.CollectionDataType) (bool, error)
	MarkCollected(ctx context.Context, districtCode, yearMonth string, dataType model.CollectionDataType) error
	InsertTrades(ctx context.Context, rows []model.TradeRecord) error
	InsertRents(ctx context.Context, rows []model.RentRecord) error

	// Assessment results (last-write-wins per address key)
	SaveAssessment(ctx context.Context, rec model.AssessmentRecord) error
	LatestAssessment(ctx context.Context, addressKey string) (*model.AssessmentRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
