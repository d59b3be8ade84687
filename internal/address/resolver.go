package address

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// Typed resolution failures. These are fatal to a request: the pipeline
// never guesses a parcel.
var (
	ErrAddressFormat    = eris.New("address: no lot number suffix found")
	ErrDistrictNotFound = eris.New("address: district not found")
)

// sidoMap expands abbreviated province/city names to their official names.
var sidoMap = map[string]string{
	"서울":  "서울특별시",
	"서울시": "서울특별시",
	"인천":  "인천광역시",
	"인천시": "인천광역시",
	"경기":  "경기도",
	"부산":  "부산광역시",
	"대구":  "대구광역시",
	"광주":  "광주광역시",
	"대전":  "대전광역시",
	"울산":  "울산광역시",
	"세종":  "세종특별자치시",
	"강원":  "강원특별자치도",
	"충북":  "충청북도",
	"충남":  "충청남도",
	"전북":  "전북특별자치도",
	"전남":  "전라남도",
	"경북":  "경상북도",
	"경남":  "경상남도",
	"제주":  "제주특별자치도",
}

// lotPattern matches a trailing "main[-sub]" lot-number suffix.
var lotPattern = regexp.MustCompile(`(.+)\s+(\d+)(?:-(\d+))?$`)

// Normalize canonicalizes an address string: NFC normalization (OCR output
// arrives in mixed normal forms), whitespace cleanup, and expansion of the
// leading province abbreviation.
func Normalize(addr string) string {
	addr = norm.NFC.String(strings.TrimSpace(addr))
	tokens := strings.Fields(addr)
	if len(tokens) == 0 {
		return addr
	}
	if full, ok := sidoMap[tokens[0]]; ok {
		tokens[0] = full
	}
	return strings.Join(tokens, " ")
}

// TableLoader supplies the district-name→code reference table. The production
// loader reads the government-published CSV; tests inject maps directly.
type TableLoader interface {
	Load(ctx context.Context) (map[string]string, error)
}

// TableLoaderFunc adapts a function to the TableLoader interface.
type TableLoaderFunc func(ctx context.Context) (map[string]string, error)

func (f TableLoaderFunc) Load(ctx context.Context) (map[string]string, error) { return f(ctx) }

// Resolver converts addresses to parcel keys using a lazily loaded,
// process-lifetime district table. Safe for concurrent use: the load runs
// under a sync.Once and the table is immutable afterwards.
type Resolver struct {
	loader TableLoader

	once  sync.Once
	table map[string]string
}

// NewResolver creates a Resolver. The table is not loaded until the first
// Resolve call.
func NewResolver(loader TableLoader) *Resolver {
	return &Resolver{loader: loader}
}

// Resolve normalizes an address and derives its ParcelKey.
func (r *Resolver) Resolve(ctx context.Context, addr string) (ParcelKey, error) {
	table, err := r.districtTable(ctx)
	if err != nil {
		// A failed load leaves an empty table; resolutions fail instead of
		// crashing the process.
		zap.L().Error("address: district table unavailable", zap.Error(err))
		return ParcelKey{}, ErrDistrictNotFound
	}

	normalized := Normalize(addr)
	m := lotPattern.FindStringSubmatch(normalized)
	if m == nil {
		return ParcelKey{}, eris.Wrapf(ErrAddressFormat, "address %q", addr)
	}
	region := strings.TrimSpace(m[1])
	mainLot, subLot := m[2], m[3]
	if subLot == "" {
		subLot = "0"
	}

	code, ok := table[region]
	if !ok || len(code) < 10 {
		return ParcelKey{}, eris.Wrapf(ErrDistrictNotFound, "region %q", region)
	}

	mainN, err := strconv.Atoi(mainLot)
	if err != nil {
		return ParcelKey{}, eris.Wrapf(ErrAddressFormat, "main lot %q", mainLot)
	}
	subN, err := strconv.Atoi(subLot)
	if err != nil {
		return ParcelKey{}, eris.Wrapf(ErrAddressFormat, "sub lot %q", subLot)
	}

	return ParcelKey{
		DistrictCode:    code[:5],
		SubDistrictCode: code[5:10],
		LandCategory:    "3", // 대지 (site); address-derived keys are always land category 3
		MainLot:         fmt.Sprintf("%04d", mainN),
		SubLot:          fmt.Sprintf("%04d", subN),
	}, nil
}

// DongCode maps a district code plus a beopjeong-dong name back to its 5-digit
// sub-district code. Collected transaction rows carry only the dong name, so
// the collector needs this reverse lookup to key them consistently.
func (r *Resolver) DongCode(ctx context.Context, districtCode, dongName string) (string, bool) {
	table, err := r.districtTable(ctx)
	if err != nil {
		return "", false
	}
	dongName = norm.NFC.String(strings.TrimSpace(dongName))
	for region, code := range table {
		if len(code) < 10 || !strings.HasPrefix(code, districtCode) {
			continue
		}
		tokens := strings.Fields(region)
		if len(tokens) > 0 && tokens[len(tokens)-1] == dongName {
			return code[5:10], true
		}
	}
	return "", false
}

// districtTable returns the memoized table, loading it at most once even
// under concurrent first access. once.Do publishes the table to every later
// caller.
func (r *Resolver) districtTable(ctx context.Context) (map[string]string, error) {
	r.once.Do(func() {
		table, err := r.loader.Load(ctx)
		if err != nil {
			table = map[string]string{}
			zap.L().Error("address: district table load failed, resolutions will fail",
				zap.Error(err),
			)
		} else {
			zap.L().Info("address: district table loaded", zap.Int("entries", len(table)))
		}
		r.table = table
	})
	if len(r.table) == 0 {
		return nil, eris.New("address: district table empty")
	}
	return r.table, nil
}
