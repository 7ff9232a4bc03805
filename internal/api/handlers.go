package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/mapd-tech/civic-impact/internal/geo"
	"github.com/mapd-tech/civic-impact/internal/model"
	"github.com/mapd-tech/civic-impact/internal/store"
)

// PermitView is one permit in a /development-permits response.
type PermitView struct {
	ID           string              `json:"id"`
	Fields       map[string]any      `json:"fields"`
	Geom         any                 `json:"geom,omitempty"`
	DistanceKM   *float64            `json:"distance_km,omitempty"`
	Analyzed     bool                `json:"analyzed"`
	ImpactReport *model.ImpactReport `json:"impact_report,omitempty"`
}

// PermitsResponse is the /development-permits body.
type PermitsResponse struct {
	Count   int          `json:"count"`
	Permits []PermitView `json:"permits"`
}

// AmenityView is one amenity in an /amenities response.
type AmenityView struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Fields     map[string]any `json:"fields"`
	Geom       any            `json:"geom,omitempty"`
	DistanceKM *float64       `json:"distance_km,omitempty"`
}

// AmenitiesResponse is the /amenities body, grouped by category.
type AmenitiesResponse struct {
	Count     int                              `json:"count"`
	Amenities map[model.Category][]AmenityView `json:"amenities"`
}

// ImpactResponse is the /impact/{permitID} body.
type ImpactResponse struct {
	Success     bool               `json:"success"`
	PermitID    string             `json:"permit_id"`
	Report      model.ImpactReport `json:"report"`
	Model       string             `json:"model,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// located pairs a record with its distance from the query origin, when the
// query is spatial.
type located struct {
	record   model.SpatialRecord
	distance *float64
}

// filter applies the spatial query. Without one every record is returned in
// input order.
func (s *Server) filter(sq spatialQuery, records []model.SpatialRecord) []located {
	if !sq.Active {
		out := make([]located, len(records))
		for i, r := range records {
			out[i] = located{record: r}
		}
		return out
	}
	matches := s.joiner.FindNearby(sq.Origin, records, geo.NearbyOptions{MaxDistanceKM: sq.RadiusKM})
	out := make([]located, len(matches))
	for i, m := range matches {
		d := m.DistanceKM
		out[i] = located{record: m.Record, distance: &d}
	}
	return out
}

func (s *Server) handlePermits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sq, err := parseSpatial(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	includeUnanalyzed, err := parseBool(q, "include_unanalyzed", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	permits, err := s.store.ListPermits(ctx)
	if err != nil {
		s.log.Error("list permits failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load permits")
		return
	}
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		s.log.Error("list reports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load reports")
		return
	}
	byPermit := make(map[string]*model.ImpactReport, len(reports))
	for i := range reports {
		byPermit[reports[i].PermitID] = &reports[i].Report
	}

	views := []PermitView{}
	for _, l := range s.filter(sq, permits) {
		rep := byPermit[l.record.ID]
		if rep == nil && !includeUnanalyzed {
			continue
		}
		views = append(views, PermitView{
			ID:           l.record.ID,
			Fields:       nonNilFields(l.record.Fields),
			Geom:         l.record.Geom,
			DistanceKM:   l.distance,
			Analyzed:     rep != nil,
			ImpactReport: rep,
		})
	}

	if wantsGeoJSON(q) {
		fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
		for _, v := range views {
			props := copyFields(v.Fields)
			props["analyzed"] = v.Analyzed
			if v.DistanceKM != nil {
				props["distance_km"] = *v.DistanceKM
			}
			if v.ImpactReport != nil {
				props["impact_report"] = v.ImpactReport
			}
			if f := feature(v.ID, v.Geom, props); f != nil {
				fc.Features = append(fc.Features, f)
			}
		}
		writeJSON(w, http.StatusOK, fc)
		return
	}
	writeJSON(w, http.StatusOK, PermitsResponse{Count: len(views), Permits: views})
}

func (s *Server) handleAmenities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sq, err := parseSpatial(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cats := model.AllCategories()
	if raw := q.Get("category"); raw != "" {
		c, err := model.ParseCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown category: "+raw)
			return
		}
		cats = []model.Category{c}
	}

	resp := AmenitiesResponse{Amenities: make(map[model.Category][]AmenityView, len(cats))}
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, c := range cats {
		records, err := s.store.ListAmenities(r.Context(), c)
		if err != nil {
			s.log.Error("list amenities failed", zap.String("category", string(c)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load amenities")
			return
		}
		views := []AmenityView{}
		for _, l := range s.filter(sq, records) {
			v := AmenityView{
				ID:         l.record.ID,
				Name:       l.record.DisplayName(),
				Fields:     nonNilFields(l.record.Fields),
				Geom:       l.record.Geom,
				DistanceKM: l.distance,
			}
			views = append(views, v)

			props := copyFields(v.Fields)
			props["category"] = string(c)
			props["name"] = v.Name
			if v.DistanceKM != nil {
				props["distance_km"] = *v.DistanceKM
			}
			if f := feature(v.ID, v.Geom, props); f != nil {
				fc.Features = append(fc.Features, f)
			}
		}
		resp.Amenities[c] = views
		resp.Count += len(views)
	}

	if wantsGeoJSON(q) {
		writeJSON(w, http.StatusOK, fc)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "permitID")
	res, err := s.store.GetReport(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no impact report for permit "+id)
		return
	}
	if err != nil {
		s.log.Error("get report failed", zap.String("permit_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, ImpactResponse{
		Success:     true,
		PermitID:    res.PermitID,
		Report:      res.Report,
		Model:       res.Model,
		GeneratedAt: res.GeneratedAt,
	})
}

// feature renders a record as a GeoJSON point feature, or nil when it has no
// usable location.
func feature(id string, blob any, props map[string]any) *geojson.Feature {
	p, ok := geo.Extract(blob)
	if !ok {
		return nil
	}
	return geo.Feature(id, p, props)
}

func nonNilFields(f map[string]any) map[string]any {
	if f == nil {
		return map[string]any{}
	}
	return f
}

func copyFields(f map[string]any) map[string]any {
	out := make(map[string]any, len(f)+4)
	for k, v := range f {
		out[k] = v
	}
	return out
}
