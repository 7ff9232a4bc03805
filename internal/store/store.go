// Package store persists permits, amenity datasets, enrichment output and
// impact reports.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/mapd-tech/civic-impact/internal/geo"
	"github.com/mapd-tech/civic-impact/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = eris.New("store: not found")

// EnrichedFilter selects enriched permits for analysis.
type EnrichedFilter struct {
	// PendingOnly skips permits that already have an impact report.
	PendingOnly bool
	// Limit caps the result; 0 means no limit.
	Limit int
}

// Store defines persistence for the impact pipeline. Every write is an
// upsert keyed by the record id so that re-running a stage overwrites
// instead of duplicating.
type Store interface {
	// Permits
	UpsertPermits(ctx context.Context, permits []model.SpatialRecord) (int, error)
	ListPermits(ctx context.Context) ([]model.SpatialRecord, error)

	// Amenities
	UpsertAmenities(ctx context.Context, cat model.Category, records []model.SpatialRecord) (int, error)
	ListAmenities(ctx context.Context, cat model.Category) ([]model.SpatialRecord, error)

	// Enrichment
	SaveEnriched(ctx context.Context, permits []model.EnrichedPermit) error
	ListEnriched(ctx context.Context, filter EnrichedFilter) ([]model.EnrichedPermit, error)

	// Impact reports
	UpsertReport(ctx context.Context, result model.AnalysisResult) error
	GetReport(ctx context.Context, permitID string) (*model.AnalysisResult, error)
	ListReports(ctx context.Context) ([]model.AnalysisResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// LoadCategorized reads every category's amenities into the shape the
// spatial join expects.
func LoadCategorized(ctx context.Context, s Store, cats []model.Category) (map[model.Category][]model.SpatialRecord, error) {
	out := make(map[model.Category][]model.SpatialRecord, len(cats))
	for _, c := range cats {
		recs, err := s.ListAmenities(ctx, c)
		if err != nil {
			return nil, eris.Wrapf(err, "store: load %s", c)
		}
		out[c] = recs
	}
	return out, nil
}

// encodedRecord is a SpatialRecord flattened to column values.
type encodedRecord struct {
	fields []byte
	geom   []byte
	point  *geo.GeoPoint
}

func encodeRecord(r model.SpatialRecord) (encodedRecord, error) {
	var enc encodedRecord
	fields := r.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	var err error
	if enc.fields, err = json.Marshal(fields); err != nil {
		return enc, eris.Wrapf(err, "store: marshal fields of %s", r.ID)
	}
	if r.Geom != nil {
		if enc.geom, err = json.Marshal(r.Geom); err != nil {
			return enc, eris.Wrapf(err, "store: marshal geom of %s", r.ID)
		}
	}
	if p, ok := geo.Extract(r.Geom); ok {
		enc.point = &p
	}
	return enc, nil
}

func decodeRecord(id string, fields, geomJSON []byte) (model.SpatialRecord, error) {
	r := model.SpatialRecord{ID: id, Fields: map[string]any{}}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &r.Fields); err != nil {
			return r, eris.Wrapf(err, "store: unmarshal fields of %s", id)
		}
	}
	if len(geomJSON) > 0 && string(geomJSON) != "null" {
		if err := json.Unmarshal(geomJSON, &r.Geom); err != nil {
			return r, eris.Wrapf(err, "store: unmarshal geom of %s", id)
		}
	}
	return r, nil
}

func lonLat(p *geo.GeoPoint) (lon, lat any) {
	if p == nil {
		return nil, nil
	}
	return p.Lon, p.Lat
}
