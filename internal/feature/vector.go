// Package feature computes the fixed-order numeric feature vector consumed
// by the scoring engine.
package feature

// Vector is the model input record. Field order matters: the classifier was
// trained against columns in exactly this order, and Names/Values must stay
// aligned with the struct declaration.
type Vector struct {
	JeonseRatio         float64 `json:"jeonse_ratio"`
	HUGRiskRatio        float64 `json:"hug_risk_ratio"`
	TotalRiskRatio      float64 `json:"total_risk_ratio"`
	EstimatedLoanRatio  float64 `json:"estimated_loan_ratio"`
	BuildingAge         float64 `json:"building_age"`
	IsIllegal           float64 `json:"is_illegal"`
	ParkingPerHousehold float64 `json:"parking_per_household"`
	IsMicroComplex      float64 `json:"is_micro_complex"`
	IsTrustOwner        float64 `json:"is_trust_owner"`
	ShortTermWeight     float64 `json:"short_term_weight"`
	TypeAPT             float64 `json:"type_APT"`
	TypeOfficetel       float64 `json:"type_OFFICETEL"`
	TypeVilla           float64 `json:"type_VILLA"`
	TypeEtc             float64 `json:"type_ETC"`
}

// Names returns the declared column names in vector order.
func Names() []string {
	return []string{
		"jeonse_ratio", "hug_risk_ratio", "total_risk_ratio", "estimated_loan_ratio",
		"building_age", "is_illegal", "parking_per_household", "is_micro_complex",
		"is_trust_owner", "short_term_weight",
		"type_APT", "type_OFFICETEL", "type_VILLA", "type_ETC",
	}
}

// Values returns the vector's fields in declaration order, aligned with
// Names().
func (v Vector) Values() []float64 {
	return []float64{
		v.JeonseRatio, v.HUGRiskRatio, v.TotalRiskRatio, v.EstimatedLoanRatio,
		v.BuildingAge, v.IsIllegal, v.ParkingPerHousehold, v.IsMicroComplex,
		v.IsTrustOwner, v.ShortTermWeight,
		v.TypeAPT, v.TypeOfficetel, v.TypeVilla, v.TypeEtc,
	}
}

// ByName returns the vector as a name→value map. Classifiers reindex from
// this map by their own declared column order, never by position.
func (v Vector) ByName() map[string]float64 {
	names, vals := Names(), v.Values()
	m := make(map[string]float64, len(names))
	for i, n := range names {
		m[n] = vals[i]
	}
	return m
}
