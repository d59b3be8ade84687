package model

import "time"

// PriceSource tags where a market price estimate came from so callers can
// weight confidence accordingly.
type PriceSource string

const (
	SourceTrade          PriceSource = "DB_Trade"
	SourceRent           PriceSource = "DB_Rent"
	SourcePublicEstimate PriceSource = "Public_Price_Estimate"
	SourceUnknown        PriceSource = "Unknown"
)

// PriceQuote is a resolved market price in manwon (10,000 KRW units).
type PriceQuote struct {
	AmountManwon float64     `json:"amount_manwon"`
	Source       PriceSource `json:"source"`
}

// Usable reports whether the quote can be scored against.
func (q PriceQuote) Usable() bool {
	return q.AmountManwon > 0 && q.Source != SourceUnknown
}

// TradeRecord is one observed sale transaction, as stored in raw_trade.
type TradeRecord struct {
	DistrictCode    string    `json:"district_code"`
	SubDistrictCode string    `json:"sub_district_code"`
	MainLot         string    `json:"main_lot"`
	SubLot          string    `json:"sub_lot"`
	ExclusiveArea   float64   `json:"exclusive_area"`
	PriceManwon     float64   `json:"price_manwon"`
	ContractDate    time.Time `json:"contract_date"`
}

// RentRecord is one observed jeonse lease, as stored in raw_rent.
type RentRecord struct {
	DistrictCode    string    `json:"district_code"`
	SubDistrictCode string    `json:"sub_district_code"`
	MainLot         string    `json:"main_lot"`
	SubLot          string    `json:"sub_lot"`
	ExclusiveArea   float64   `json:"exclusive_area"`
	DepositManwon   float64   `json:"deposit_manwon"`
	MonthlyRent     float64   `json:"monthly_rent"`
	ContractDate    time.Time `json:"contract_date"`
}

// PublicPriceRecord is one assessed (government-published) price row.
type PublicPriceRecord struct {
	PNURaw        string   `json:"pnu"`
	PriceWon      float64  `json:"price_won"`
	ExclusiveArea *float64 `json:"exclusive_area,omitempty"`
	BaseYear      int      `json:"base_year"`
}

// CollectionDataType distinguishes the two national datasets the on-demand
// collector can refresh.
type CollectionDataType string

const (
	CollectTrade CollectionDataType = "TRADE"
	CollectRent  CollectionDataType = "RENT"
)
