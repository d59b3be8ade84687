// Package collect fetches transaction and lease records from the national
// real-estate price API on demand, keyed by sub-district and year-month.
package collect

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/model"
	"github.com/daru-lab/jeonseguard/internal/resilience"
	"github.com/daru-lab/jeonseguard/internal/store"
)

// DongCoder maps a (district code, dong name) pair to the 5-digit sub-district
// code. *address.Resolver satisfies it.
type DongCoder interface {
	DongCode(ctx context.Context, districtCode, dongName string) (string, bool)
}

// Config tunes the collector.
type Config struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	ServiceKey string        `yaml:"service_key" mapstructure:"service_key"`
	Months     int           `yaml:"months" mapstructure:"months"`
	RatePerSec float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	NumRows    int           `yaml:"num_rows" mapstructure:"num_rows"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Enabled reports whether on-demand collection can run at all. The external
// price API rejects every request without a service key, so an empty key
// means the collector stays out of the pricing chain entirely.
func (c Config) Enabled() bool {
	return c.ServiceKey != ""
}

func (c *Config) withDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://apis.data.go.kr/1613000"
	}
	if c.Months <= 0 {
		c.Months = 10
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.NumRows <= 0 {
		c.NumRows = 1000
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Client collects price datasets. It implements price.Collector.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	store   store.Store
	coder   DongCoder
	now     func() time.Time
}

// New creates a collector Client.
func New(st store.Store, coder DongCoder, cfg Config) *Client {
	return NewAt(st, coder, cfg, time.Now)
}

// NewAt is New with an injected clock.
func NewAt(st store.Store, coder DongCoder, cfg Config, now func() time.Time) *Client {
	cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		store:   st,
		coder:   coder,
		now:     now,
	}
}

// dataset pairs a collection type with its API endpoint path.
var datasets = []struct {
	dataType model.CollectionDataType
	path     string
}{
	{model.CollectTrade, "RTMSDataSvcAptTrade/getRTMSDataSvcAptTrade"},
	{model.CollectRent, "RTMSDataSvcAptRent/getRTMSDataSvcAptRent"},
}

// Collect refreshes both datasets for the parcel's district over the recent
// year-month window. Each (district, year-month, type) fetch runs at most once
// per day; already-collected combinations are skipped via the collection log.
func (c *Client) Collect(ctx context.Context, key address.ParcelKey) error {
	months := c.yearMonths()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, ds := range datasets {
		for _, ym := range months {
			g.Go(func() error {
				return c.collectOne(gctx, key.DistrictCode, ym, ds.dataType, ds.path)
			})
		}
	}
	return g.Wait()
}

func (c *Client) collectOne(ctx context.Context, districtCode, yearMonth string, dataType model.CollectionDataType, path string) error {
	done, err := c.store.CollectedToday(ctx, districtCode, yearMonth, dataType)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	body, err := c.fetch(ctx, path, districtCode, yearMonth)
	if err != nil {
		return err
	}

	switch dataType {
	case model.CollectTrade:
		recs, err := c.parseTrades(ctx, districtCode, body)
		if err != nil {
			return err
		}
		if err := c.store.InsertTrades(ctx, recs); err != nil {
			return err
		}
		zap.L().Info("collect: trades stored",
			zap.String("district", districtCode), zap.String("ym", yearMonth), zap.Int("rows", len(recs)))
	case model.CollectRent:
		recs, err := c.parseRents(ctx, districtCode, body)
		if err != nil {
			return err
		}
		if err := c.store.InsertRents(ctx, recs); err != nil {
			return err
		}
		zap.L().Info("collect: rents stored",
			zap.String("district", districtCode), zap.String("ym", yearMonth), zap.Int("rows", len(recs)))
	}

	return c.store.MarkCollected(ctx, districtCode, yearMonth, dataType)
}

func (c *Client) fetch(ctx context.Context, path, districtCode, yearMonth string) ([]byte, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts: 3,
		OnRetry:     resilience.RetryLogger("price-api", path),
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return c.fetchOnce(ctx, path, districtCode, yearMonth)
	})
}

func (c *Client) fetchOnce(ctx context.Context, path, districtCode, yearMonth string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "collect: rate limit wait")
	}

	q := url.Values{}
	q.Set("serviceKey", c.cfg.ServiceKey)
	q.Set("LAWD_CD", districtCode)
	q.Set("DEAL_YMD", yearMonth)
	q.Set("numOfRows", strconv.Itoa(c.cfg.NumRows))

	reqURL := fmt.Sprintf("%s/%s?%s", strings.TrimRight(c.cfg.BaseURL, "/"), path, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "collect: build request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "collect: fetch %s %s", districtCode, yearMonth)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("collect: fetch %s %s: status %d", districtCode, yearMonth, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, eris.Wrap(err, "collect: read body")
	}
	return body, nil
}

type apiEnvelope struct {
	Header struct {
		ResultCode string `xml:"resultCode"`
		ResultMsg  string `xml:"resultMsg"`
	} `xml:"header"`
	Body struct {
		Items struct {
			Item []apiItem `xml:"item"`
		} `xml:"items"`
	} `xml:"body"`
}

// apiItem covers both the trade and rent schemas; irrelevant fields
// unmarshal to zero values.
type apiItem struct {
	DealAmount  string `xml:"dealAmount"`
	Deposit     string `xml:"deposit"`
	MonthlyRent string `xml:"monthlyRent"`
	ExcluUseAr  string `xml:"excluUseAr"`
	DealYear    int    `xml:"dealYear"`
	DealMonth   int    `xml:"dealMonth"`
	DealDay     int    `xml:"dealDay"`
	UmdNm       string `xml:"umdNm"`
	Jibun       string `xml:"jibun"`
}

func parseEnvelope(body []byte) ([]apiItem, error) {
	var env apiEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(err, "collect: decode response")
	}
	// "000" is the open-data platform's success code.
	if env.Header.ResultCode != "" && env.Header.ResultCode != "000" && env.Header.ResultCode != "00" {
		return nil, eris.Errorf("collect: API error %s: %s", env.Header.ResultCode, env.Header.ResultMsg)
	}
	return env.Body.Items.Item, nil
}

func (c *Client) parseTrades(ctx context.Context, districtCode string, body []byte) ([]model.TradeRecord, error) {
	items, err := parseEnvelope(body)
	if err != nil {
		return nil, err
	}
	var out []model.TradeRecord
	for _, it := range items {
		dongCode, ok := c.coder.DongCode(ctx, districtCode, it.UmdNm)
		if !ok {
			continue
		}
		price, ok := parseAmount(it.DealAmount)
		if !ok {
			continue
		}
		mainLot, subLot := parseJibun(it.Jibun)
		out = append(out, model.TradeRecord{
			DistrictCode:    districtCode,
			SubDistrictCode: dongCode,
			MainLot:         mainLot,
			SubLot:          subLot,
			ExclusiveArea:   parseArea(it.ExcluUseAr),
			PriceManwon:     price,
			ContractDate:    dealDate(it.DealYear, it.DealMonth, it.DealDay),
		})
	}
	return out, nil
}

func (c *Client) parseRents(ctx context.Context, districtCode string, body []byte) ([]model.RentRecord, error) {
	items, err := parseEnvelope(body)
	if err != nil {
		return nil, err
	}
	var out []model.RentRecord
	for _, it := range items {
		dongCode, ok := c.coder.DongCode(ctx, districtCode, it.UmdNm)
		if !ok {
			continue
		}
		deposit, ok := parseAmount(it.Deposit)
		if !ok {
			continue
		}
		monthly, _ := parseAmount(it.MonthlyRent)
		mainLot, subLot := parseJibun(it.Jibun)
		out = append(out, model.RentRecord{
			DistrictCode:    districtCode,
			SubDistrictCode: dongCode,
			MainLot:         mainLot,
			SubLot:          subLot,
			ExclusiveArea:   parseArea(it.ExcluUseAr),
			DepositManwon:   deposit,
			MonthlyRent:     monthly,
			ContractDate:    dealDate(it.DealYear, it.DealMonth, it.DealDay),
		})
	}
	return out, nil
}

// yearMonths returns the collection window, current month first. Stepping
// back from the first of the month: AddDate on a month-end date normalizes
// (Mar 31 minus a month lands in early March) and would skip February.
func (c *Client) yearMonths() []string {
	now := c.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	out := make([]string, 0, c.cfg.Months)
	for i := 0; i < c.cfg.Months; i++ {
		out = append(out, first.AddDate(0, -i, 0).Format("200601"))
	}
	return out
}

// parseAmount parses a comma-grouped manwon amount like "82,500".
func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseArea(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseJibun splits "658-1" into zero-padded main and sub lot numbers.
func parseJibun(s string) (mainLot, subLot string) {
	mainLot, subLot = "0000", "0000"
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if n, err := strconv.Atoi(parts[0]); err == nil {
		mainLot = fmt.Sprintf("%04d", n)
	}
	if len(parts) == 2 {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			subLot = fmt.Sprintf("%04d", n)
		}
	}
	return mainLot, subLot
}

func dealDate(year, month, day int) time.Time {
	if month <= 0 {
		month = 1
	}
	if day <= 0 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
