package geo

import (
	"sort"

	"github.com/mapd-tech/civic-impact/internal/model"
)

// NearbyOptions controls a single-category radius search.
type NearbyOptions struct {
	// MaxDistanceKM is the inclusive search radius. Non-positive values yield
	// no matches.
	MaxDistanceKM float64
	// Limit caps the number of matches; 0 means unlimited.
	Limit int
	// ExcludeZero drops candidates at exactly the origin.
	ExcludeZero bool
}

// Joiner finds candidates near an origin. Implementations must return matches
// sorted ascending by DistanceKM with ties kept in input order, so that an
// indexed implementation is interchangeable with LinearJoiner.
type Joiner interface {
	FindNearby(origin GeoPoint, candidates []model.SpatialRecord, opts NearbyOptions) []model.AmenityMatch
}

// LinearJoiner scans every candidate. It is the reference Joiner and is fast
// enough for datasets of a few thousand records per category.
type LinearJoiner struct{}

// FindNearby implements Joiner.
func (LinearJoiner) FindNearby(origin GeoPoint, candidates []model.SpatialRecord, opts NearbyOptions) []model.AmenityMatch {
	matches := []model.AmenityMatch{}
	if !(opts.MaxDistanceKM > 0) || !origin.Valid() {
		return matches
	}

	for _, c := range candidates {
		pt, ok := Extract(c.Geom)
		if !ok {
			continue
		}
		d := Haversine(origin, pt)
		if opts.ExcludeZero && d <= 0 {
			continue
		}
		if d > opts.MaxDistanceKM {
			continue
		}
		rounded := RoundKM(d)
		if rounded > opts.MaxDistanceKM {
			// Rounding up must not leak a match past the radius.
			continue
		}
		matches = append(matches, model.AmenityMatch{Record: c, DistanceKM: rounded})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceKM < matches[j].DistanceKM
	})

	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches
}

// FindNearby runs a linear single-category join.
func FindNearby(origin GeoPoint, candidates []model.SpatialRecord, opts NearbyOptions) []model.AmenityMatch {
	return LinearJoiner{}.FindNearby(origin, candidates, opts)
}

// JoinAll applies j independently to every category in categorized. Each
// input key is present in the result, mapped to an empty slice when nothing
// matched.
func JoinAll(j Joiner, origin GeoPoint, categorized map[model.Category][]model.SpatialRecord, opts NearbyOptions) map[model.Category][]model.AmenityMatch {
	out := make(map[model.Category][]model.AmenityMatch, len(categorized))
	for cat, candidates := range categorized {
		matches := j.FindNearby(origin, candidates, opts)
		if matches == nil {
			matches = []model.AmenityMatch{}
		}
		out[cat] = matches
	}
	return out
}

// EnrichPermit joins one permit against the categorized amenities. The result
// always carries every category from model.AllCategories plus any extra keys
// in categorized. A permit without a usable location gets empty categories.
func EnrichPermit(j Joiner, permit model.SpatialRecord, categorized map[model.Category][]model.SpatialRecord, opts NearbyOptions) model.EnrichedPermit {
	nearby := make(map[model.Category][]model.AmenityMatch, len(model.AllCategories()))
	for _, cat := range model.AllCategories() {
		nearby[cat] = []model.AmenityMatch{}
	}

	if origin, ok := Extract(permit.Geom); ok {
		for cat, matches := range JoinAll(j, origin, categorized, opts) {
			nearby[cat] = matches
		}
	} else {
		for cat := range categorized {
			nearby[cat] = []model.AmenityMatch{}
		}
	}

	return model.EnrichedPermit{Permit: permit, Nearby: nearby}
}
