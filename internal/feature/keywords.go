package feature

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// BuildingType is the one-hot classification of a building's main use.
type BuildingType string

const (
	TypeAPT       BuildingType = "APT"
	TypeOfficetel BuildingType = "OFFICETEL"
	TypeVilla     BuildingType = "VILLA"
	TypeEtc       BuildingType = "ETC"
)

// KeywordTable drives free-text building classification. The main-use field
// is heterogeneous free text from registries, documents and scraped sources,
// so classification stays keyword-driven rather than enum-driven.
type KeywordTable struct {
	// One-hot classification keywords, checked in precedence order
	// APT → OFFICETEL → VILLA.
	APT       []string `yaml:"apt"`
	Officetel []string `yaml:"officetel"`
	Villa     []string `yaml:"villa"`

	// Loan-ratio risk weights: commercial/neighborhood-facility usage and
	// multi-unit usage carry empirically higher fraud incidence.
	CommercialRisk []string `yaml:"commercial_risk"`
	MultiUnitRisk  []string `yaml:"multi_unit_risk"`
}

// DefaultKeywordTable returns the built-in table matching the deployed
// classifier's training encoding.
func DefaultKeywordTable() KeywordTable {
	return KeywordTable{
		APT:            []string{"아파트"},
		Officetel:      []string{"오피스텔"},
		Villa:          []string{"다세대", "연립", "빌라"},
		CommercialRisk: []string{"근린"},
		MultiUnitRisk:  []string{"다세대", "연립", "오피스텔", "빌라"},
	}
}

// LoadKeywordTable reads a YAML override table; empty sections fall back to
// the defaults so a partial override never disables classification.
func LoadKeywordTable(path string) (KeywordTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return KeywordTable{}, eris.Wrapf(err, "feature: read keyword table %s", path)
	}
	table := DefaultKeywordTable()
	var override KeywordTable
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return KeywordTable{}, eris.Wrapf(err, "feature: parse keyword table %s", path)
	}
	if len(override.APT) > 0 {
		table.APT = override.APT
	}
	if len(override.Officetel) > 0 {
		table.Officetel = override.Officetel
	}
	if len(override.Villa) > 0 {
		table.Villa = override.Villa
	}
	if len(override.CommercialRisk) > 0 {
		table.CommercialRisk = override.CommercialRisk
	}
	if len(override.MultiUnitRisk) > 0 {
		table.MultiUnitRisk = override.MultiUnitRisk
	}
	return table, nil
}

// Classify maps a free-text main-use label onto the one-hot building type.
// Precedence is fixed: APT, then OFFICETEL, then VILLA, else ETC.
func (t KeywordTable) Classify(mainUse string) BuildingType {
	switch {
	case containsAny(mainUse, t.APT):
		return TypeAPT
	case containsAny(mainUse, t.Officetel):
		return TypeOfficetel
	case containsAny(mainUse, t.Villa):
		return TypeVilla
	default:
		return TypeEtc
	}
}

// TypeRiskWeight returns the building-type contribution to the estimated
// loan ratio: 0.4 for commercial/neighborhood facilities, 0.1 for multi-unit
// classes, else 0.
func (t KeywordTable) TypeRiskWeight(mainUse string) float64 {
	switch {
	case containsAny(mainUse, t.CommercialRisk):
		return 0.4
	case containsAny(mainUse, t.MultiUnitRisk):
		return 0.1
	default:
		return 0
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
