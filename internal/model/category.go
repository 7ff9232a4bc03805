package model

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category identifies one amenity dataset that permits are joined against.
type Category string

const (
	CategoryParks                Category = "parks"
	CategoryPublicArt            Category = "public_art"
	CategoryCommunityCenters     Category = "community_centers"
	CategoryLibraries            Category = "libraries"
	CategoryCulturalSpaces       Category = "cultural_spaces"
	CategoryPublicWashrooms      Category = "public_washrooms"
	CategoryRapidTransitStations Category = "rapid_transit_stations"
	CategorySchools              Category = "schools"
	CategoryFireHalls            Category = "fire_halls"
)

var allCategories = []Category{
	CategoryParks,
	CategoryPublicArt,
	CategoryCommunityCenters,
	CategoryLibraries,
	CategoryCulturalSpaces,
	CategoryPublicWashrooms,
	CategoryRapidTransitStations,
	CategorySchools,
	CategoryFireHalls,
}

// AllCategories returns every amenity category in canonical order. The
// returned slice is a copy and may be modified by the caller.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// DisplayName renders the category for prompts and spreadsheets,
// e.g. "rapid_transit_stations" -> "Rapid Transit Stations".
func (c Category) DisplayName() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(c), "_", " "))
}

// ParseCategory converts a user-supplied name (case-insensitive, dashes or
// underscores) into a Category.
func ParseCategory(s string) (Category, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	c := Category(norm)
	if !c.Valid() {
		return "", eris.Errorf("model: unknown category %q", s)
	}
	return c, nil
}
