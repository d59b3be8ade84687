package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/daru-lab/jeonseguard/internal/address"
	"github.com/daru-lab/jeonseguard/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and CI runs where no Postgres is available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LatestTrade(ctx context.Context, key address.ParcelKey, area *float64) (*model.TradeRecord, error) {
	q := `
		SELECT exclusive_area, trade_price, contract_date
		FROM raw_trade
		WHERE district = ? AND legal_dong = ? AND main_jibun = ? AND sub_jibun = ?`
	args := []any{key.DistrictCode, key.SubDistrictCode, key.MainLot, key.SubLot}
	if area != nil {
		q += ` AND exclusive_area BETWEEN ? - 3 AND ? + 3`
		args = append(args, *area, *area)
	}
	q += ` ORDER BY contract_date DESC LIMIT 1`

	rec := model.TradeRecord{
		DistrictCode:    key.DistrictCode,
		SubDistrictCode: key.SubDistrictCode,
		MainLot:         key.MainLot,
		SubLot:          key.SubLot,
	}
	var contractDate string
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&rec.ExclusiveArea, &rec.PriceManwon, &contractDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: latest trade")
	}
	rec.ContractDate = parseSQLiteDate(contractDate)
	return &rec, nil
}

func (s *SQLiteStore) LatestRent(ctx context.Context, key address.ParcelKey, area *float64) (*model.RentRecord, error) {
	q := `
		SELECT exclusive_area, deposit, contract_date
		FROM raw_rent
		WHERE district = ? AND legal_dong = ? AND main_jibun = ? AND sub_jibun = ?
		  AND (monthly_rent IS NULL OR monthly_rent = 0)`
	args := []any{key.DistrictCode, key.SubDistrictCode, unpad(key.MainLot), unpad(key.SubLot)}
	if area != nil {
		q += ` AND exclusive_area BETWEEN ? - 3 AND ? + 3`
		args = append(args, *area, *area)
	}
	q += ` ORDER BY contract_date DESC LIMIT 1`

	rec := model.RentRecord{
		DistrictCode:    key.DistrictCode,
		SubDistrictCode: key.SubDistrictCode,
		MainLot:         key.MainLot,
		SubLot:          key.SubLot,
	}
	var contractDate string
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&rec.ExclusiveArea, &rec.DepositManwon, &contractDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: latest rent")
	}
	rec.ContractDate = parseSQLiteDate(contractDate)
	return &rec, nil
}

func (s *SQLiteStore) PublicPrices(ctx context.Context, key address.ParcelKey) ([]model.PublicPriceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pnu, price, exclusive_area, base_year
		FROM official_price_raw
		WHERE pnu = ?
		ORDER BY base_year DESC`,
		key.Raw(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: public prices")
	}
	defer rows.Close()

	var out []model.PublicPriceRecord
	for rows.Next() {
		var rec model.PublicPriceRecord
		if err := rows.Scan(&rec.PNURaw, &rec.PriceWon, &rec.ExclusiveArea, &rec.BaseYear); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan public price")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: public prices rows")
	}
	return out, nil
}

func (s *SQLiteStore) BuildingByParcel(ctx context.Context, pnuPattern string) (*model.BuildingInfo, error) {
	row := s.db.QueryRowContext(ctx,
		buildingSelect+`
	WHERE b.unique_number LIKE ?
	ORDER BY p.base_date DESC
	LIMIT 1`,
		pnuPattern,
	)
	return scanBuildingSQL(row)
}

func (s *SQLiteStore) BuildingByAddress(ctx context.Context, roadAddr, lotAddr string) (*model.BuildingInfo, error) {
	row := s.db.QueryRowContext(ctx,
		buildingSelect+`
	WHERE b.road_address LIKE ? OR b.lot_address LIKE ?
	ORDER BY p.base_date DESC
	LIMIT 1`,
		"%"+roadAddr+"%", "%"+lotAddr+"%",
	)
	return scanBuildingSQL(row)
}

func scanBuildingSQL(row *sql.Row) (*model.BuildingInfo, error) {
	var b model.BuildingInfo
	err := row.Scan(
		&b.ID, &b.UniqueNumber, &b.DetailAddress, &b.MainUse, &b.ExclusiveArea,
		&b.OwnerName, &b.OwnershipChangedDate, &b.IsViolating,
		&b.PublicPriceWon,
		&b.HouseholdCount, &b.ParkingCount, &b.ElevatorCount, &b.UseApprovalDay,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: scan building")
	}
	return &b, nil
}

func (s *SQLiteStore) CollectedToday(ctx context.Context, districtCode, yearMonth string, dataType model.CollectionDataType) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM api_price_log
		WHERE sigungu_code = ? AND deal_ymd = ? AND data_type = ?
		  AND date(collected_at) = date('now')
		LIMIT 1`,
		districtCode, yearMonth, string(dataType),
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrap(err, "sqlite: collection log check")
	}
	return true, nil
}

func (s *SQLiteStore) MarkCollected(ctx context.Context, districtCode, yearMonth string, dataType model.CollectionDataType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_price_log (sigungu_code, deal_ymd, data_type, collected_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT (sigungu_code, deal_ymd, data_type)
		DO UPDATE SET collected_at = datetime('now')`,
		districtCode, yearMonth, string(dataType),
	)
	return eris.Wrap(err, "sqlite: collection log update")
}

func (s *SQLiteStore) InsertTrades(ctx context.Context, recs []model.TradeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert trades")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO raw_trade
			(district, legal_dong, main_jibun, sub_jibun, exclusive_area, trade_price, contract_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert trades")
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.DistrictCode, r.SubDistrictCode, r.MainLot, r.SubLot,
			r.ExclusiveArea, r.PriceManwon, r.ContractDate.Format("2006-01-02"),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert trade")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert trades")
}

func (s *SQLiteStore) InsertRents(ctx context.Context, recs []model.RentRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert rents")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO raw_rent
			(district, legal_dong, main_jibun, sub_jibun, exclusive_area, deposit, monthly_rent, contract_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert rents")
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.DistrictCode, r.SubDistrictCode, unpad(r.MainLot), unpad(r.SubLot),
			r.ExclusiveArea, r.DepositManwon, r.MonthlyRent, r.ContractDate.Format("2006-01-02"),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert rent")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert rents")
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, rec model.AssessmentRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save assessment")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM risk_analysis_result WHERE address_key = ?`,
		rec.AddressKey,
	); err != nil {
		return eris.Wrap(err, "sqlite: delete prior assessment")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO risk_analysis_result (
			building_info_id, address_key, used_rent_price, used_market_price,
			jeonse_ratio, hug_safe_limit, hug_risk_ratio, total_risk_ratio,
			estimated_loan_ratio, risk_level, risk_score, ai_risk_prob,
			scoring_path, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.BuildingInfoID, rec.AddressKey, rec.UsedRentPrice, rec.UsedMarketPrice,
		rec.JeonseRatio, rec.HUGSafeLimit, rec.HUGRiskRatio, rec.TotalRiskRatio,
		rec.EstimatedLoanRatio, string(rec.RiskLevel), rec.RiskScore, rec.AIRiskProb,
		string(rec.ScoringPath), rec.AnalyzedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return eris.Wrap(err, "sqlite: insert assessment")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save assessment")
}

func (s *SQLiteStore) LatestAssessment(ctx context.Context, addressKey string) (*model.AssessmentRecord, error) {
	var rec model.AssessmentRecord
	var level, path, analyzedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT building_info_id, address_key, used_rent_price, used_market_price,
		       jeonse_ratio, hug_safe_limit, hug_risk_ratio, total_risk_ratio,
		       estimated_loan_ratio, risk_level, risk_score, ai_risk_prob,
		       scoring_path, analyzed_at
		FROM risk_analysis_result
		WHERE address_key = ?
		ORDER BY analyzed_at DESC
		LIMIT 1`,
		addressKey,
	).Scan(
		&rec.BuildingInfoID, &rec.AddressKey, &rec.UsedRentPrice, &rec.UsedMarketPrice,
		&rec.JeonseRatio, &rec.HUGSafeLimit, &rec.HUGRiskRatio, &rec.TotalRiskRatio,
		&rec.EstimatedLoanRatio, &level, &rec.RiskScore, &rec.AIRiskProb,
		&path, &analyzedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: latest assessment")
	}
	rec.RiskLevel = model.RiskLevel(level)
	rec.ScoringPath = model.ScoringPath(path)
	if t, err := time.Parse(time.RFC3339, analyzedAt); err == nil {
		rec.AnalyzedAt = t
	}
	return &rec, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// parseSQLiteDate accepts the date-only and datetime renderings SQLite can
// hand back for a DATE column.
func parseSQLiteDate(s string) time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_trade (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	district       TEXT NOT NULL,
	legal_dong     TEXT NOT NULL,
	main_jibun     TEXT NOT NULL,
	sub_jibun      TEXT NOT NULL,
	exclusive_area REAL,
	trade_price    REAL NOT NULL,
	contract_date  TEXT NOT NULL,
	UNIQUE (district, legal_dong, main_jibun, sub_jibun, exclusive_area, trade_price, contract_date)
);
CREATE INDEX IF NOT EXISTS idx_raw_trade_parcel ON raw_trade (district, legal_dong, main_jibun, sub_jibun);

CREATE TABLE IF NOT EXISTS raw_rent (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	district       TEXT NOT NULL,
	legal_dong     TEXT NOT NULL,
	main_jibun     TEXT NOT NULL,
	sub_jibun      TEXT NOT NULL,
	exclusive_area REAL,
	deposit        REAL NOT NULL,
	monthly_rent   REAL,
	contract_date  TEXT NOT NULL,
	UNIQUE (district, legal_dong, main_jibun, sub_jibun, exclusive_area, deposit, contract_date)
);
CREATE INDEX IF NOT EXISTS idx_raw_rent_parcel ON raw_rent (district, legal_dong, main_jibun, sub_jibun);

CREATE TABLE IF NOT EXISTS official_price_raw (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	pnu            TEXT NOT NULL,
	price          REAL NOT NULL,
	exclusive_area REAL,
	base_year      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_official_price_pnu ON official_price_raw (pnu);

CREATE TABLE IF NOT EXISTS building_info (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	unique_number          TEXT NOT NULL,
	road_address           TEXT,
	lot_address            TEXT,
	detail_address         TEXT NOT NULL DEFAULT '',
	main_use               TEXT NOT NULL DEFAULT '',
	exclusive_area         REAL,
	owner_name             TEXT NOT NULL DEFAULT '',
	ownership_changed_date TEXT,
	is_violating_building  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_building_info_pnu ON building_info (unique_number);

CREATE TABLE IF NOT EXISTS building_title_info (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	unique_number TEXT NOT NULL,
	household_cnt INTEGER,
	parking_cnt   INTEGER,
	elevator_cnt  INTEGER,
	use_apr_day   TEXT
);

CREATE TABLE IF NOT EXISTS public_price_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	building_info_id INTEGER REFERENCES building_info(id),
	price            REAL NOT NULL,
	base_date        TEXT
);

CREATE TABLE IF NOT EXISTS api_price_log (
	sigungu_code TEXT NOT NULL,
	deal_ymd     TEXT NOT NULL,
	data_type    TEXT NOT NULL,
	collected_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (sigungu_code, deal_ymd, data_type)
);

CREATE TABLE IF NOT EXISTS risk_analysis_result (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	building_info_id     INTEGER NOT NULL DEFAULT 0,
	address_key          TEXT NOT NULL,
	used_rent_price      REAL NOT NULL,
	used_market_price    REAL NOT NULL,
	jeonse_ratio         REAL NOT NULL,
	hug_safe_limit       REAL NOT NULL,
	hug_risk_ratio       REAL NOT NULL,
	total_risk_ratio     REAL NOT NULL,
	estimated_loan_ratio REAL NOT NULL,
	risk_level           TEXT NOT NULL,
	risk_score           INTEGER NOT NULL,
	ai_risk_prob         REAL NOT NULL,
	scoring_path         TEXT NOT NULL DEFAULT 'rules',
	analyzed_at          TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_risk_result_key ON risk_analysis_result (address_key);
`
