// Package address normalizes Korean lot-number addresses and derives the
// parcel key (PNU) used to correlate price, registry and assessment data.
package address

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ParcelKey is the normalized composite identifier for one parcel. Lot
// numbers are always held zero-padded to 4 digits; an absent sub-lot is
// "0000". It is derived per request and never persisted on its own.
type ParcelKey struct {
	DistrictCode    string // sigungu, 5 digits
	SubDistrictCode string // beopjeong-dong, 5 digits
	LandCategory    string // single digit; "3" (site) when derived from an address
	MainLot         string // 4 digits
	SubLot          string // 4 digits
}

// PNU renders the key in the hyphenated national parcel-number format,
// e.g. "1111010100-3-00010002".
func (k ParcelKey) PNU() string {
	return fmt.Sprintf("%s%s-%s-%s%s",
		k.DistrictCode, k.SubDistrictCode, k.LandCategory, k.MainLot, k.SubLot)
}

// Raw renders the 19-digit join format used by the assessed-price table,
// with the land-category digit normalized to "0".
func (k ParcelKey) Raw() string {
	return k.DistrictCode + k.SubDistrictCode + "0" + k.MainLot + k.SubLot
}

// AddressKey renders the result-storage key, e.g. "28237-10100-0065-0124".
func (k ParcelKey) AddressKey() string {
	if k.DistrictCode == "" {
		return "UNKNOWN"
	}
	return fmt.Sprintf("%s-%s-%s-%s", k.DistrictCode, k.SubDistrictCode, k.MainLot, k.SubLot)
}

// Valid reports whether the key carries a full district code.
func (k ParcelKey) Valid() bool {
	return len(k.DistrictCode) == 5 && len(k.SubDistrictCode) == 5
}

// ParsePNU parses a hyphenated PNU string, typically one extracted from a
// building-registry document, back into a ParcelKey.
func ParsePNU(s string) (ParcelKey, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) < 3 {
		return ParcelKey{}, eris.Errorf("address: malformed PNU %q", s)
	}
	codes, category, lots := parts[0], parts[1], parts[2]
	if len(codes) < 10 || len(lots) < 4 {
		return ParcelKey{}, eris.Errorf("address: malformed PNU %q", s)
	}
	key := ParcelKey{
		DistrictCode:    codes[:5],
		SubDistrictCode: codes[5:10],
		LandCategory:    category,
		MainLot:         lots[:4],
		SubLot:          "0000",
	}
	if len(lots) >= 8 {
		key.SubLot = lots[4:8]
	}
	return key, nil
}
