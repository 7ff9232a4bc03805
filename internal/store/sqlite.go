package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mapd-tech/civic-impact/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Locations are kept
// as plain lon/lat columns; the spatial join always runs in process.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS permits (
	id          TEXT PRIMARY KEY,
	fields      TEXT NOT NULL,
	geom        TEXT,
	lon         REAL,
	lat         REAL,
	ingested_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS amenities (
	category    TEXT NOT NULL,
	id          TEXT NOT NULL,
	fields      TEXT NOT NULL,
	geom        TEXT,
	lon         REAL,
	lat         REAL,
	ingested_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (category, id)
);

CREATE TABLE IF NOT EXISTS enriched_permits (
	permit_id    TEXT PRIMARY KEY,
	nearby       TEXT NOT NULL,
	nearby_count INTEGER NOT NULL DEFAULT 0,
	enriched_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS impact_reports (
	permit_id          TEXT PRIMARY KEY,
	report             TEXT NOT NULL,
	model              TEXT NOT NULL DEFAULT '',
	overall_importance REAL NOT NULL,
	generated_at       DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_amenities_category ON amenities(category);
CREATE INDEX IF NOT EXISTS idx_impact_reports_importance ON impact_reports(overall_importance);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertPermits(ctx context.Context, permits []model.SpatialRecord) (int, error) {
	if len(permits) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert permits")
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	for _, p := range permits {
		enc, err := encodeRecord(p)
		if err != nil {
			return 0, err
		}
		lon, lat := lonLat(enc.point)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO permits (id, fields, geom, lon, lat, ingested_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET fields = excluded.fields, geom = excluded.geom,
				lon = excluded.lon, lat = excluded.lat, ingested_at = excluded.ingested_at`,
			p.ID, string(enc.fields), nullString(enc.geom), lon, lat, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert permit %s", p.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert permits")
	}
	return len(permits), nil
}

func (s *SQLiteStore) ListPermits(ctx context.Context) ([]model.SpatialRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, fields, geom FROM permits ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list permits")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SpatialRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan permit")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate permits")
}

func (s *SQLiteStore) UpsertAmenities(ctx context.Context, cat model.Category, records []model.SpatialRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: begin upsert %s", cat)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO amenities (category, id, fields, geom, lon, lat, ingested_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (category, id) DO UPDATE SET fields = excluded.fields, geom = excluded.geom,
			lon = excluded.lon, lat = excluded.lat, ingested_at = excluded.ingested_at`)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare upsert %s", cat)
	}
	defer stmt.Close() //nolint:errcheck

	now := s.now().UTC()
	for _, r := range records {
		enc, err := encodeRecord(r)
		if err != nil {
			return 0, err
		}
		lon, lat := lonLat(enc.point)
		if _, err := stmt.ExecContext(ctx, string(cat), r.ID, string(enc.fields), nullString(enc.geom), lon, lat, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s %s", cat, r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: commit upsert %s", cat)
	}
	return len(records), nil
}

func (s *SQLiteStore) ListAmenities(ctx context.Context, cat model.Category) ([]model.SpatialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields, geom FROM amenities WHERE category = ? ORDER BY id`, string(cat))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", cat)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.SpatialRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", cat)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", cat)
}

func (s *SQLiteStore) SaveEnriched(ctx context.Context, permits []model.EnrichedPermit) error {
	if len(permits) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save enriched")
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now().UTC()
	for _, p := range permits {
		nearby, err := json.Marshal(p.Nearby)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal nearby of %s", p.Permit.ID)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO enriched_permits (permit_id, nearby, nearby_count, enriched_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (permit_id) DO UPDATE SET nearby = excluded.nearby,
				nearby_count = excluded.nearby_count, enriched_at = excluded.enriched_at`,
			p.Permit.ID, string(nearby), p.NearbyCount(), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save enriched %s", p.Permit.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save enriched")
}

func (s *SQLiteStore) ListEnriched(ctx context.Context, filter EnrichedFilter) ([]model.EnrichedPermit, error) {
	query := `SELECT p.id, p.fields, p.geom, e.nearby
		FROM enriched_permits e JOIN permits p ON p.id = e.permit_id`
	if filter.PendingOnly {
		query += ` WHERE NOT EXISTS (SELECT 1 FROM impact_reports r WHERE r.permit_id = e.permit_id)`
	}
	query += ` ORDER BY p.id`
	var args []any
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list enriched")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EnrichedPermit
	for rows.Next() {
		var id, fields, nearby string
		var geomJSON sql.NullString
		if err := rows.Scan(&id, &fields, &geomJSON, &nearby); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan enriched")
		}
		e, err := decodeEnriched(id, []byte(fields), []byte(geomJSON.String), []byte(nearby))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate enriched")
}

func (s *SQLiteStore) UpsertReport(ctx context.Context, result model.AnalysisResult) error {
	report, err := json.Marshal(result.Report)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal report of %s", result.PermitID)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO impact_reports (permit_id, report, model, overall_importance, generated_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (permit_id) DO UPDATE SET report = excluded.report, model = excluded.model,
			overall_importance = excluded.overall_importance, generated_at = excluded.generated_at,
			updated_at = excluded.updated_at`,
		result.PermitID, string(report), result.Model,
		result.Report.AnalysisSummary.OverallImportance,
		result.GeneratedAt.UTC(), s.now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert report %s", result.PermitID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, permitID string) (*model.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT permit_id, report, model, generated_at FROM impact_reports WHERE permit_id = ?`, permitID)
	res, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", permitID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %s", permitID)
	}
	return res, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context) ([]model.AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT permit_id, report, model, generated_at FROM impact_reports ORDER BY permit_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AnalysisResult
	for rows.Next() {
		res, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		out = append(out, *res)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate reports")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (model.SpatialRecord, error) {
	var id, fields string
	var geomJSON sql.NullString
	if err := sc.Scan(&id, &fields, &geomJSON); err != nil {
		return model.SpatialRecord{}, err
	}
	return decodeRecord(id, []byte(fields), []byte(geomJSON.String))
}

func scanReport(sc scanner) (*model.AnalysisResult, error) {
	var res model.AnalysisResult
	var report string
	if err := sc.Scan(&res.PermitID, &report, &res.Model, &res.GeneratedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(report), &res.Report); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal report %s", res.PermitID)
	}
	return &res, nil
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
