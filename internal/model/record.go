package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SpatialRecord is one geotagged row from a civic dataset. Geom holds the raw
// geometry blob exactly as loaded; it is resolved to a point only when joined.
type SpatialRecord struct {
	ID     string         `json:"id"`
	Geom   any            `json:"geom,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// nameKeys lists the per-dataset columns that carry a human readable name,
// in lookup order.
var nameKeys = []string{
	"name",
	"title_of_work",
	"cultural_space_name",
	"school_name",
	"station",
	"park_name",
	"sitename",
	"address",
}

// Field returns the named field rendered as a string, or "" when absent.
func (r SpatialRecord) Field(key string) string {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// DisplayName returns the first non-empty name-like field, falling back to the ID.
func (r SpatialRecord) DisplayName() string {
	for _, k := range nameKeys {
		if s := r.Field(k); s != "" {
			return s
		}
	}
	return r.ID
}

// AmenityMatch is a candidate that fell inside the search radius of a join.
type AmenityMatch struct {
	Record     SpatialRecord `json:"record"`
	DistanceKM float64       `json:"distance_km"`
}

// EnrichedPermit is a permit with its nearby amenities grouped by category.
// Every category requested by the join is present, possibly with an empty slice.
type EnrichedPermit struct {
	Permit SpatialRecord               `json:"permit"`
	Nearby map[Category][]AmenityMatch `json:"buildings_nearby"`
}

// NearbyCount returns the total number of matches across all categories.
func (e EnrichedPermit) NearbyCount() int {
	n := 0
	for _, matches := range e.Nearby {
		n += len(matches)
	}
	return n
}
