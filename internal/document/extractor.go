// Package document turns raw OCR JSON from the building ledger and the title
// registry into typed, defaulted scalar features. Extraction is a pure
// function with no failure modes: anything missing or unparseable resolves to
// a documented neutral default, and confidence is communicated downstream
// through risk factors instead of errors.
package document

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Features is the best-effort extraction result for one document pair.
type Features struct {
	UniqueNumber      string
	MainUse           string
	AreaSize          *float64 // nil means unknown, not zero
	UsageApprovalDate string   // loosely formatted, parsed downstream
	IsIllegal         bool
	IsTrustOwner      bool
	// ShortTermWeight is the ownership-recency step weight: 0.3 under 90
	// days, 0.1 under 730, else 0.
	ShortTermWeight         float64
	RealDebtManwon          float64
	OwnershipDurationMonths *int
}

// Extractor holds the extraction clock; production code uses time.Now, tests
// pin it.
type Extractor struct {
	now func() time.Time
}

// New creates an Extractor using the real clock.
func New() *Extractor {
	return &Extractor{now: time.Now}
}

// NewAt creates an Extractor with a fixed clock for deterministic tests.
func NewAt(now time.Time) *Extractor {
	return &Extractor{now: func() time.Time { return now }}
}

// Extract combines ledger and registry OCR output into Features. Both inputs
// may be nil or missing any key at any level.
func (e *Extractor) Extract(ledger, registry map[string]any) Features {
	f := e.parseLedger(ledger)
	e.parseRegistry(registry, &f)
	return f
}

func (e *Extractor) parseLedger(ledger map[string]any) Features {
	status := subMap(ledger, "building_status")
	docInfo := subMap(ledger, "document_info")
	safety := subMap(ledger, "safety_check")

	f := Features{
		UniqueNumber:      str(docInfo["unique_number"]),
		MainUse:           str(status["main_usage"]),
		UsageApprovalDate: str(status["usage_approval_date"]),
		IsIllegal:         truthy(safety["is_violator"]),
	}
	if area, ok := ParseArea(status["area"]); ok {
		f.AreaSize = &area
	}
	return f
}

func (e *Extractor) parseRegistry(registry map[string]any, f *Features) {
	basic := subMap(registry, "basic_info")
	risky := subMap(registry, "risk_factors")

	owner := str(basic["owner"])
	trustContent := str(risky["trust_content"])
	f.IsTrustOwner = strings.Contains(owner, "신탁") || strings.Contains(trustContent, "신탁")

	if dt, ok := ParseLooseDate(str(basic["ownership_date"])); ok {
		days := int(e.now().Sub(dt).Hours() / 24)
		months := days / 30
		f.OwnershipDurationMonths = &months
		f.ShortTermWeight = ShortTermWeight(days)
	}

	f.RealDebtManwon = SumActiveDebts(list(registry["debts"])) / 10000
}

// ExtractAddress pulls the property address out of either document; used when
// the request carries documents but no explicit address.
func ExtractAddress(ledger, registry map[string]any) string {
	status := subMap(ledger, "building_status")
	if addr := firstNonEmpty(str(status["address"]), str(status["lot_address"])); addr != "" {
		return addr
	}
	loc := subMap(ledger, "location")
	if addr := str(loc["address"]); addr != "" {
		return addr
	}
	basic := subMap(registry, "basic_info")
	return firstNonEmpty(str(basic["address"]), str(basic["property_address"]))
}

// ShortTermWeight maps elapsed ownership days to the step-function risk
// weight. These thresholds are fixed business values: a flip inside 90 days
// is treated as high risk, inside two years as moderate.
func ShortTermWeight(days int) float64 {
	switch {
	case days < 90:
		return 0.3
	case days < 730:
		return 0.1
	default:
		return 0
	}
}

var numToken = regexp.MustCompile(`[\d.]+`)

// ParseArea extracts the first numeric token from a free-text area field,
// e.g. "84.5㎡" → 84.5. Returns false when nothing numeric is present; area
// stays unknown rather than zero so downstream area matching can skip it.
func ParseArea(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		if t > 0 {
			return t, true
		}
		return 0, false
	case int:
		if t > 0 {
			return float64(t), true
		}
		return 0, false
	}
	tok := numToken.FindString(str(v))
	if tok == "" {
		return 0, false
	}
	area, err := strconv.ParseFloat(strings.Trim(tok, "."), 64)
	if err != nil || area <= 0 {
		return 0, false
	}
	return area, true
}

var eightDigits = regexp.MustCompile(`\d{8}`)

// ParseLooseDate accepts the date shapes OCR produces for registry dates:
// "20240101", "2024-01-01", "2024.01.01", "2024/01/01". It compacts to digits
// and reads the first 8-digit run.
func ParseLooseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	cleaned := strings.NewReplacer("-", "", ".", "", "/", "", " ", "").Replace(s)
	run := eightDigits.FindString(cleaned)
	if run == "" {
		return time.Time{}, false
	}
	dt, err := time.Parse("20060102", run)
	if err != nil {
		return time.Time{}, false
	}
	return dt, true
}

// ParseFlexibleDate additionally accepts delimited dates with unpadded
// components ("2001.5.3", "1995/5/20"), which building-ledger approval dates
// commonly use. Falls back to the 8-digit-run parse.
func ParseFlexibleDate(s string) (time.Time, bool) {
	if dt, ok := ParseLooseDate(s); ok {
		return dt, ok
	}
	cleaned := strings.NewReplacer(".", "-", "/", "-", " ", "").Replace(strings.TrimSpace(s))
	cleaned = strings.Trim(cleaned, "-")
	for _, layout := range []string{"2006-1-2", "2006-1"} {
		if dt, err := time.Parse(layout, cleaned); err == nil {
			return dt, true
		}
	}
	return time.Time{}, false
}

var digitRun = regexp.MustCompile(`\d+`)

// SumActiveDebts totals the amounts (in won) of debt records whose status is
// still effective. Cancelled, deleted and 말소 (discharged) records are
// excluded; unparseable rows are OCR noise and skipped silently.
func SumActiveDebts(debts []any) float64 {
	var total float64
	for _, item := range debts {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		status := strings.ToLower(str(rec["status"]))
		if status == "cancelled" || status == "deleted" || strings.Contains(status, "말소") {
			continue
		}
		raw := strings.ReplaceAll(str(rec["amount"]), ",", "")
		runs := digitRun.FindAllString(raw, -1)
		if len(runs) == 0 {
			continue
		}
		amount, err := strconv.ParseFloat(strings.Join(runs, ""), 64)
		if err != nil {
			continue
		}
		total += amount
	}
	return total
}

// --- tolerant JSON traversal helpers ---

func subMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if sub, ok := m[key].(map[string]any); ok {
		return sub
	}
	return nil
}

func list(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "y" || s == "1" || s == "위반"
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
