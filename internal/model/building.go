package model

// BuildingInfo is the joined building-registry view used by the pipeline:
// the exclusive-unit row plus title-section counts and the latest assessed
// price, as returned by Store.BuildingByParcel.
type BuildingInfo struct {
	ID                   int64    `json:"building_info_id"`
	UniqueNumber         string   `json:"unique_number"`
	DetailAddress        string   `json:"detail_address"`
	MainUse              string   `json:"main_use"`
	ExclusiveArea        *float64 `json:"exclusive_area,omitempty"`
	OwnerName            string   `json:"owner_name"`
	OwnershipChangedDate string   `json:"ownership_changed_date"`
	IsViolating          bool     `json:"is_violating_building"`
	PublicPriceWon       float64  `json:"public_price"`
	HouseholdCount       int      `json:"household_cnt"`
	ParkingCount         int      `json:"parking_cnt"`
	ElevatorCount        int      `json:"elevator_cnt"`
	UseApprovalDay       string   `json:"use_apr_day"`
}
