package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/db"
	"github.com/daru-lab/jeonseguard/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems needing direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// LatestTrade returns the most recent sale transaction for the parcel,
// optionally filtered to recorded areas within ±3 of the target.
func (s *PostgresStore) LatestTrade(ctx context.Context, key address.ParcelKey, area *float64) (*model.TradeRecord, error) {
	sql := `
		SELECT exclusive_area, trade_price, contract_date
		FROM raw_trade
		WHERE district = $1 AND legal_dong = $2 AND main_jibun = $3 AND sub_jibun = $4`
	args := []any{key.DistrictCode, key.SubDistrictCode, key.MainLot, key.SubLot}
	if area != nil {
		sql += ` AND exclusive_area BETWEEN $5 - 3 AND $5 + 3`
		args = append(args, *area)
	}
	sql += ` ORDER BY contract_date DESC LIMIT 1`

	rec := model.TradeRecord{
		DistrictCode:    key.DistrictCode,
		SubDistrictCode: key.SubDistrictCode,
		MainLot:         key.MainLot,
		SubLot:          key.SubLot,
	}
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&rec.ExclusiveArea, &rec.PriceManwon, &rec.ContractDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest trade")
	}
	return &rec, nil
}

// LatestRent returns the most recent pure-jeonse lease (no monthly rent) for
// the parcel. Jibun columns in raw_rent are stored unpadded.
func (s *PostgresStore) LatestRent(ctx context.Context, key address.ParcelKey, area *float64) (*model.RentRecord, error) {
	sql := `
		SELECT exclusive_area, deposit, contract_date
		FROM raw_rent
		WHERE district = $1 AND legal_dong = $2 AND main_jibun = $3 AND sub_jibun = $4
		  AND (monthly_rent IS NULL OR monthly_rent = 0)`
	args := []any{key.DistrictCode, key.SubDistrictCode, unpad(key.MainLot), unpad(key.SubLot)}
	if area != nil {
		sql += ` AND exclusive_area BETWEEN $5 - 3 AND $5 + 3`
		args = append(args, *area)
	}
	sql += ` ORDER BY contract_date DESC LIMIT 1`

	rec := model.RentRecord{
		DistrictCode:    key.DistrictCode,
		SubDistrictCode: key.SubDistrictCode,
		MainLot:         key.MainLot,
		SubLot:          key.SubLot,
	}
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&rec.ExclusiveArea, &rec.DepositManwon, &rec.ContractDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest rent")
	}
	return &rec, nil
}

// PublicPrices returns all assessed-price rows for the parcel, newest base
// year first.
func (s *PostgresStore) PublicPrices(ctx context.Context, key address.ParcelKey) ([]model.PublicPriceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pnu, price, exclusive_area, base_year
		FROM official_price_raw
		WHERE pnu = $1
		ORDER BY base_year DESC`,
		key.Raw(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: public prices")
	}
	defer rows.Close()

	var out []model.PublicPriceRecord
	for rows.Next() {
		var rec model.PublicPriceRecord
		if err := rows.Scan(&rec.PNURaw, &rec.PriceWon, &rec.ExclusiveArea, &rec.BaseYear); err != nil {
			return nil, eris.Wrap(err, "postgres: scan public price")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: public prices rows")
	}
	return out, nil
}

const buildingSelect = `
	SELECT
		b.id, b.unique_number, b.detail_address, b.main_use, b.exclusive_area,
		b.owner_name, COALESCE(b.ownership_changed_date, ''), b.is_violating_building,
		COALESCE(p.price, 0),
		COALESCE(t.household_cnt, 0), COALESCE(t.parking_cnt, 0),
		COALESCE(t.elevator_cnt, 0), COALESCE(t.use_apr_day, '')
	FROM building_info b
	LEFT JOIN public_price_history p ON p.building_info_id = b.id
	LEFT JOIN building_title_info t
		ON substr(b.unique_number, 1, 14) = substr(t.unique_number, 1, 14)`

// BuildingByParcel looks up the joined building view. The argument is a SQL
// LIKE pattern over the ledger unique number, typically district+dong code,
// a wildcard over the land-category segment, then the lot digits.
func (s *PostgresStore) BuildingByParcel(ctx context.Context, pnuPattern string) (*model.BuildingInfo, error) {
	row := s.pool.QueryRow(ctx,
		buildingSelect+`
	WHERE b.unique_number LIKE $1
	ORDER BY p.base_date DESC NULLS LAST
	LIMIT 1`,
		pnuPattern,
	)
	return scanBuilding(row)
}

// BuildingByAddress is the fallback lookup used when no parcel key resolved.
func (s *PostgresStore) BuildingByAddress(ctx context.Context, roadAddr, lotAddr string) (*model.BuildingInfo, error) {
	row := s.pool.QueryRow(ctx,
		buildingSelect+`
	WHERE b.road_address LIKE $1 OR b.lot_address LIKE $2
	ORDER BY p.base_date DESC NULLS LAST
	LIMIT 1`,
		"%"+roadAddr+"%", "%"+lotAddr+"%",
	)
	return scanBuilding(row)
}

func scanBuilding(row pgx.Row) (*model.BuildingInfo, error) {
	var b model.BuildingInfo
	err := row.Scan(
		&b.ID, &b.UniqueNumber, &b.DetailAddress, &b.MainUse, &b.ExclusiveArea,
		&b.OwnerName, &b.OwnershipChangedDate, &b.IsViolating,
		&b.PublicPriceWon,
		&b.HouseholdCount, &b.ParkingCount, &b.ElevatorCount, &b.UseApprovalDay,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: scan building")
	}
	return &b, nil
}

// CollectedToday reports whether the (district, year-month, type) dataset was
// already collected today, preventing redundant external fetches.
func (s *PostgresStore) CollectedToday(ctx context.Context, districtCode, yearMonth string, dataType model.CollectionDataType) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM api_price_log
		WHERE sigungu_code = $1 AND deal_ymd = $2 AND data_type = $3
		  AND collected_at::date = CURRENT_DATE
		LIMIT 1`,
		districtCode, yearMonth, string(dataType),
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrap(err, "postgres: collection log check")
	}
	return true, nil
}

// MarkCollected records a completed collection for today.
func (s *PostgresStore) MarkCollected(ctx context.Context, districtCode, yearMonth string, dataType model.CollectionDataType) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_price_log (sigungu_code, deal_ymd, data_type, collected_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (sigungu_code, deal_ymd, data_type)
		DO UPDATE SET collected_at = now()`,
		districtCode, yearMonth, string(dataType),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: collection log update")
	}
	return nil
}

var tradeColumns = []string{"district", "legal_dong", "main_jibun", "sub_jibun", "exclusive_area", "trade_price", "contract_date"}

// InsertTrades bulk-inserts collected sale transactions, skipping duplicates.
func (s *PostgresStore) InsertTrades(ctx context.Context, recs []model.TradeRecord) error {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []any{
			r.DistrictCode, r.SubDistrictCode, r.MainLot, r.SubLot,
			r.ExclusiveArea, r.PriceManwon, r.ContractDate,
		})
	}
	n, err := db.BulkInsert(ctx, s.pool, "raw_trade", tradeColumns, rows)
	if err != nil {
		return eris.Wrap(err, "postgres: insert trades")
	}
	zap.L().Debug("store: trades inserted", zap.Int64("rows", n))
	return nil
}

var rentColumns = []string{"district", "legal_dong", "main_jibun", "sub_jibun", "exclusive_area", "deposit", "monthly_rent", "contract_date"}

// InsertRents bulk-inserts collected lease records, skipping duplicates.
func (s *PostgresStore) InsertRents(ctx context.Context, recs []model.RentRecord) error {
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []any{
			r.DistrictCode, r.SubDistrictCode, unpad(r.MainLot), unpad(r.SubLot),
			r.ExclusiveArea, r.DepositManwon, r.MonthlyRent, r.ContractDate,
		})
	}
	n, err := db.BulkInsert(ctx, s.pool, "raw_rent", rentColumns, rows)
	if err != nil {
		return eris.Wrap(err, "postgres: insert rents")
	}
	zap.L().Debug("store: rents inserted", zap.Int64("rows", n))
	return nil
}

// SaveAssessment replaces any prior result for the address key and inserts
// the new one in a single transaction.
func (s *PostgresStore) SaveAssessment(ctx context.Context, rec model.AssessmentRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save assessment")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM risk_analysis_result WHERE address_key = $1`,
		rec.AddressKey,
	); err != nil {
		return eris.Wrap(err, "postgres: delete prior assessment")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO risk_analysis_result (
			building_info_id, address_key, used_rent_price, used_market_price,
			jeonse_ratio, hug_safe_limit, hug_risk_ratio, total_risk_ratio,
			estimated_loan_ratio, risk_level, risk_score, ai_risk_prob,
			scoring_path, analyzed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.BuildingInfoID, rec.AddressKey, rec.UsedRentPrice, rec.UsedMarketPrice,
		rec.JeonseRatio, rec.HUGSafeLimit, rec.HUGRiskRatio, rec.TotalRiskRatio,
		rec.EstimatedLoanRatio, string(rec.RiskLevel), rec.RiskScore, rec.AIRiskProb,
		string(rec.ScoringPath), rec.AnalyzedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: insert assessment")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit save assessment")
	}
	return nil
}

// LatestAssessment returns the current result for an address key, or nil.
func (s *PostgresStore) LatestAssessment(ctx context.Context, addressKey string) (*model.AssessmentRecord, error) {
	var rec model.AssessmentRecord
	var level, path string
	err := s.pool.QueryRow(ctx, `
		SELECT building_info_id, address_key, used_rent_price, used_market_price,
		       jeonse_ratio, hug_safe_limit, hug_risk_ratio, total_risk_ratio,
		       estimated_loan_ratio, risk_level, risk_score, ai_risk_prob,
		       scoring_path, analyzed_at
		FROM risk_analysis_result
		WHERE address_key = $1
		ORDER BY analyzed_at DESC
		LIMIT 1`,
		addressKey,
	).Scan(
		&rec.BuildingInfoID, &rec.AddressKey, &rec.UsedRentPrice, &rec.UsedMarketPrice,
		&rec.JeonseRatio, &rec.HUGSafeLimit, &rec.HUGRiskRatio, &rec.TotalRiskRatio,
		&rec.EstimatedLoanRatio, &level, &rec.RiskScore, &rec.AIRiskProb,
		&path, &rec.AnalyzedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest assessment")
	}
	rec.RiskLevel = model.RiskLevel(level)
	rec.ScoringPath = model.ScoringPath(path)
	return &rec, nil
}

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	zap.L().Info("store: postgres schema up to date")
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// unpad strips leading zeros from a lot number, keeping at least one digit.
func unpad(lot string) string {
	trimmed := strings.TrimLeft(lot, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_trade (
	id             BIGSERIAL PRIMARY KEY,
	district       TEXT NOT NULL,
	legal_dong     TEXT NOT NULL,
	main_jibun     TEXT NOT NULL,
	sub_jibun      TEXT NOT NULL,
	exclusive_area DOUBLE PRECISION,
	trade_price    DOUBLE PRECISION NOT NULL,
	contract_date  DATE NOT NULL,
	UNIQUE (district, legal_dong, main_jibun, sub_jibun, exclusive_area, trade_price, contract_date)
);
CREATE INDEX IF NOT EXISTS idx_raw_trade_parcel ON raw_trade (district, legal_dong, main_jibun, sub_jibun);

CREATE TABLE IF NOT EXISTS raw_rent (
	id             BIGSERIAL PRIMARY KEY,
	district       TEXT NOT NULL,
	legal_dong     TEXT NOT NULL,
	main_jibun     TEXT NOT NULL,
	sub_jibun      TEXT NOT NULL,
	exclusive_area DOUBLE PRECISION,
	deposit        DOUBLE PRECISION NOT NULL,
	monthly_rent   DOUBLE PRECISION,
	contract_date  DATE NOT NULL,
	UNIQUE (district, legal_dong, main_jibun, sub_jibun, exclusive_area, deposit, contract_date)
);
CREATE INDEX IF NOT EXISTS idx_raw_rent_parcel ON raw_rent (district, legal_dong, main_jibun, sub_jibun);

CREATE TABLE IF NOT EXISTS official_price_raw (
	id             BIGSERIAL PRIMARY KEY,
	pnu            TEXT NOT NULL,
	price          DOUBLE PRECISION NOT NULL,
	exclusive_area DOUBLE PRECISION,
	base_year      INT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_official_price_pnu ON official_price_raw (pnu);

CREATE TABLE IF NOT EXISTS building_info (
	id                     BIGSERIAL PRIMARY KEY,
	unique_number          TEXT NOT NULL,
	road_address           TEXT,
	lot_address            TEXT,
	detail_address         TEXT NOT NULL DEFAULT '',
	main_use               TEXT NOT NULL DEFAULT '',
	exclusive_area         DOUBLE PRECISION,
	owner_name             TEXT NOT NULL DEFAULT '',
	ownership_changed_date TEXT,
	is_violating_building  BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_building_info_pnu ON building_info (unique_number);

CREATE TABLE IF NOT EXISTS building_title_info (
	id            BIGSERIAL PRIMARY KEY,
	unique_number TEXT NOT NULL,
	household_cnt INT,
	parking_cnt   INT,
	elevator_cnt  INT,
	use_apr_day   TEXT
);

CREATE TABLE IF NOT EXISTS public_price_history (
	id               BIGSERIAL PRIMARY KEY,
	building_info_id BIGINT REFERENCES building_info(id),
	price            DOUBLE PRECISION NOT NULL,
	base_date        DATE
);

CREATE TABLE IF NOT EXISTS api_price_log (
	sigungu_code TEXT NOT NULL,
	deal_ymd     TEXT NOT NULL,
	data_type    TEXT NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (sigungu_code, deal_ymd, data_type)
);

CREATE TABLE IF NOT EXISTS risk_analysis_result (
	id                   BIGSERIAL PRIMARY KEY,
	building_info_id     BIGINT NOT NULL DEFAULT 0,
	address_key          TEXT NOT NULL,
	used_rent_price      DOUBLE PRECISION NOT NULL,
	used_market_price    DOUBLE PRECISION NOT NULL,
	jeonse_ratio         DOUBLE PRECISION NOT NULL,
	hug_safe_limit       DOUBLE PRECISION NOT NULL,
	hug_risk_ratio       DOUBLE PRECISION NOT NULL,
	total_risk_ratio     DOUBLE PRECISION NOT NULL,
	estimated_loan_ratio DOUBLE PRECISION NOT NULL,
	risk_level           TEXT NOT NULL,
	risk_score           INT NOT NULL,
	ai_risk_prob         DOUBLE PRECISION NOT NULL,
	scoring_path         TEXT NOT NULL DEFAULT 'rules',
	analyzed_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_risk_result_key ON risk_analysis_result (address_key);
`
