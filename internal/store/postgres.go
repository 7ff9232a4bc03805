package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/db"
	"github.com/mapd-tech/civic-impact/internal/geo"
	"github.com/mapd-tech/civic-impact/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore implements Store on PostgreSQL with PostGIS.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgres connects to connString and returns a store owning the pool.
func NewPostgres(ctx context.Context, connString string, cfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return NewPostgresWithPool(pool), nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, migrationFS, "migrations"), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const upsertPermitSQL = `INSERT INTO permits (id, fields, geom, location, ingested_at)
VALUES ($1, $2, $3, ST_GeomFromEWKB($4), $5)
ON CONFLICT (id) DO UPDATE SET fields = EXCLUDED.fields, geom = EXCLUDED.geom,
	location = EXCLUDED.location, ingested_at = EXCLUDED.ingested_at`

func (s *PostgresStore) UpsertPermits(ctx context.Context, permits []model.SpatialRecord) (int, error) {
	if len(permits) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert permits")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.now().UTC()
	for _, p := range permits {
		enc, err := encodeRecord(p)
		if err != nil {
			return 0, err
		}
		var ewkb []byte
		if enc.point != nil {
			if ewkb, err = geo.EncodeEWKB(*enc.point); err != nil {
				return 0, eris.Wrapf(err, "postgres: encode location of %s", p.ID)
			}
		}
		if _, err := tx.Exec(ctx, upsertPermitSQL, p.ID, enc.fields, enc.geom, ewkb, now); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert permit %s", p.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert permits")
	}
	return len(permits), nil
}

func (s *PostgresStore) ListPermits(ctx context.Context) ([]model.SpatialRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, fields, geom, ST_AsEWKB(location) FROM permits ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list permits")
	}
	defer rows.Close()

	var out []model.SpatialRecord
	for rows.Next() {
		var id string
		var fields, geomJSON, location []byte
		if err := rows.Scan(&id, &fields, &geomJSON, &location); err != nil {
			return nil, eris.Wrap(err, "postgres: scan permit")
		}
		r, err := decodeRecord(id, fields, geomJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, withLocation(r, location))
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate permits")
}

var amenityUpsert = db.UpsertSpec{
	Table:        "amenities",
	Columns:      []string{"category", "id", "fields", "geom", "lon", "lat", "ingested_at"},
	ConflictKeys: []string{"category", "id"},
}

func (s *PostgresStore) UpsertAmenities(ctx context.Context, cat model.Category, records []model.SpatialRecord) (int, error) {
	now := s.now().UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		enc, err := encodeRecord(r)
		if err != nil {
			return 0, err
		}
		lon, lat := lonLat(enc.point)
		rows = append(rows, []any{string(cat), r.ID, enc.fields, enc.geom, lon, lat, now})
	}

	n, err := db.BulkUpsert(ctx, s.pool, amenityUpsert, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert %s", cat)
	}
	zap.L().Debug("amenities upserted", zap.String("category", string(cat)), zap.Int64("rows", n))
	return len(rows), nil
}

func (s *PostgresStore) ListAmenities(ctx context.Context, cat model.Category) ([]model.SpatialRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, fields, geom FROM amenities WHERE category = $1 ORDER BY id`, string(cat))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", cat)
	}
	defer rows.Close()

	out := []model.SpatialRecord{}
	for rows.Next() {
		var id string
		var fields, geomJSON []byte
		if err := rows.Scan(&id, &fields, &geomJSON); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", cat)
		}
		r, err := decodeRecord(id, fields, geomJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", cat)
}

const saveEnrichedSQL = `INSERT INTO enriched_permits (permit_id, nearby, nearby_count, enriched_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (permit_id) DO UPDATE SET nearby = EXCLUDED.nearby,
	nearby_count = EXCLUDED.nearby_count, enriched_at = EXCLUDED.enriched_at`

func (s *PostgresStore) SaveEnriched(ctx context.Context, permits []model.EnrichedPermit) error {
	if len(permits) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save enriched")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.now().UTC()
	for _, p := range permits {
		nearby, err := json.Marshal(p.Nearby)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal nearby of %s", p.Permit.ID)
		}
		if _, err := tx.Exec(ctx, saveEnrichedSQL, p.Permit.ID, nearby, p.NearbyCount(), now); err != nil {
			return eris.Wrapf(err, "postgres: save enriched %s", p.Permit.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save enriched")
}

func (s *PostgresStore) ListEnriched(ctx context.Context, filter EnrichedFilter) ([]model.EnrichedPermit, error) {
	query := `SELECT p.id, p.fields, p.geom, ST_AsEWKB(p.location), e.nearby
FROM enriched_permits e JOIN permits p ON p.id = e.permit_id`
	if filter.PendingOnly {
		query += `
WHERE NOT EXISTS (SELECT 1 FROM impact_reports r WHERE r.permit_id = e.permit_id)`
	}
	query += `
ORDER BY p.id`
	var args []any
	if filter.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list enriched")
	}
	defer rows.Close()

	var out []model.EnrichedPermit
	for rows.Next() {
		var id string
		var fields, geomJSON, location, nearby []byte
		if err := rows.Scan(&id, &fields, &geomJSON, &location, &nearby); err != nil {
			return nil, eris.Wrap(err, "postgres: scan enriched")
		}
		e, err := decodeEnriched(id, fields, geomJSON, nearby)
		if err != nil {
			return nil, err
		}
		e.Permit = withLocation(e.Permit, location)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate enriched")
}

const upsertReportSQL = `INSERT INTO impact_reports (permit_id, report, model, overall_importance, generated_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (permit_id) DO UPDATE SET report = EXCLUDED.report, model = EXCLUDED.model,
	overall_importance = EXCLUDED.overall_importance, generated_at = EXCLUDED.generated_at,
	updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) UpsertReport(ctx context.Context, result model.AnalysisResult) error {
	report, err := json.Marshal(result.Report)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal report of %s", result.PermitID)
	}
	_, err = s.pool.Exec(ctx, upsertReportSQL,
		result.PermitID, report, result.Model,
		result.Report.AnalysisSummary.OverallImportance,
		result.GeneratedAt.UTC(), s.now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert report %s", result.PermitID)
}

func (s *PostgresStore) GetReport(ctx context.Context, permitID string) (*model.AnalysisResult, error) {
	var res model.AnalysisResult
	var report []byte
	err := s.pool.QueryRow(ctx,
		`SELECT permit_id, report, model, generated_at FROM impact_reports WHERE permit_id = $1`, permitID,
	).Scan(&res.PermitID, &report, &res.Model, &res.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "report %s", permitID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", permitID)
	}
	if err := json.Unmarshal(report, &res.Report); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal report %s", permitID)
	}
	return &res, nil
}

func (s *PostgresStore) ListReports(ctx context.Context) ([]model.AnalysisResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT permit_id, report, model, generated_at FROM impact_reports ORDER BY permit_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var out []model.AnalysisResult
	for rows.Next() {
		var res model.AnalysisResult
		var report []byte
		if err := rows.Scan(&res.PermitID, &report, &res.Model, &res.GeneratedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		if err := json.Unmarshal(report, &res.Report); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal report %s", res.PermitID)
		}
		out = append(out, res)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate reports")
}

func decodeEnriched(id string, fields, geomJSON, nearby []byte) (model.EnrichedPermit, error) {
	permit, err := decodeRecord(id, fields, geomJSON)
	if err != nil {
		return model.EnrichedPermit{}, err
	}
	e := model.EnrichedPermit{Permit: permit, Nearby: map[model.Category][]model.AmenityMatch{}}
	if err := json.Unmarshal(nearby, &e.Nearby); err != nil {
		return e, eris.Wrapf(err, "store: unmarshal nearby of %s", id)
	}
	for _, c := range model.AllCategories() {
		if e.Nearby[c] == nil {
			e.Nearby[c] = []model.AmenityMatch{}
		}
	}
	return e, nil
}

// withLocation fills in a flat lon/lat geometry from the PostGIS location
// column when the stored geometry blob has no usable point.
func withLocation(r model.SpatialRecord, location []byte) model.SpatialRecord {
	if len(location) == 0 {
		return r
	}
	if _, ok := geo.Extract(r.Geom); ok {
		return r
	}
	p, err := geo.DecodeEWKB(location)
	if err != nil {
		zap.L().Debug("postgres: unreadable permit location",
			zap.String("permit_id", r.ID), zap.Error(err))
		return r
	}
	r.Geom = map[string]any{"lon": p.Lon, "lat": p.Lat}
	return r
}
