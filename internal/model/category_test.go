package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllCategories_FixedOrder(t *testing.T) {
	cats := AllCategories()
	require.Len(t, cats, 9)
	assert.Equal(t, CategoryParks, cats[0])
	assert.Equal(t, CategoryFireHalls, cats[8])

	// Mutating the copy must not leak into the package state.
	cats[0] = "mutated"
	assert.Equal(t, CategoryParks, AllCategories()[0])
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"parks", CategoryParks},
		{"Public-Art", CategoryPublicArt},
		{"  RAPID_TRANSIT_STATIONS ", CategoryRapidTransitStations},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCategory("casinos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestCategory_DisplayName(t *testing.T) {
	assert.Equal(t, "Rapid Transit Stations", CategoryRapidTransitStations.DisplayName())
	assert.Equal(t, "Parks", CategoryParks.DisplayName())
}
