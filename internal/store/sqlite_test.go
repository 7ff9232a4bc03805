package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapd-tech/civic-impact/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_Permits_UpsertAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertPermits(ctx, []model.SpatialRecord{
		permitRecord("BP-2", -123.1, 49.28),
		{ID: "BP-1", Fields: map[string]any{"address": "unknown"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.ListPermits(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BP-1", got[0].ID)
	assert.Nil(t, got[0].Geom)
	assert.Equal(t, "BP-2", got[1].ID)
	assert.Equal(t, "750000", got[1].Field("projectvalue"))
	assert.NotNil(t, got[1].Geom)
}

func TestSQLite_Permits_UpsertOverwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertPermits(ctx, []model.SpatialRecord{permitRecord("BP-1", -123.1, 49.28)})
	require.NoError(t, err)

	updated := permitRecord("BP-1", -123.1, 49.28)
	updated.Fields["address"] = "2 Main St"
	_, err = st.UpsertPermits(ctx, []model.SpatialRecord{updated})
	require.NoError(t, err)

	got, err := st.ListPermits(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2 Main St", got[0].Field("address"))
}

func TestSQLite_Amenities_ByCategory(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertAmenities(ctx, model.CategoryParks, []model.SpatialRecord{
		{ID: "p1", Geom: map[string]any{"lon": -123.0, "lat": 49.2}, Fields: map[string]any{"name": "Park A"}},
	})
	require.NoError(t, err)
	_, err = st.UpsertAmenities(ctx, model.CategoryLibraries, []model.SpatialRecord{
		{ID: "l1", Fields: map[string]any{"name": "Library A"}},
	})
	require.NoError(t, err)

	parks, err := st.ListAmenities(ctx, model.CategoryParks)
	require.NoError(t, err)
	require.Len(t, parks, 1)
	assert.Equal(t, "Park A", parks[0].DisplayName())

	schools, err := st.ListAmenities(ctx, model.CategorySchools)
	require.NoError(t, err)
	assert.NotNil(t, schools)
	assert.Empty(t, schools)

	categorized, err := LoadCategorized(ctx, st, model.AllCategories())
	require.NoError(t, err)
	assert.Len(t, categorized, len(model.AllCategories()))
	assert.Len(t, categorized[model.CategoryLibraries], 1)
}

func TestSQLite_Enriched_PendingOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertPermits(ctx, []model.SpatialRecord{
		permitRecord("BP-1", -123.1, 49.28),
		permitRecord("BP-2", -123.2, 49.25),
	})
	require.NoError(t, err)

	enriched := []model.EnrichedPermit{
		{Permit: permitRecord("BP-1", -123.1, 49.28), Nearby: map[model.Category][]model.AmenityMatch{
			model.CategoryParks: {{Record: model.SpatialRecord{ID: "p1", Fields: map[string]any{"name": "Park A"}}, DistanceKM: 0.25}},
		}},
		{Permit: permitRecord("BP-2", -123.2, 49.25), Nearby: map[model.Category][]model.AmenityMatch{}},
	}
	require.NoError(t, st.SaveEnriched(ctx, enriched))

	all, err := st.ListEnriched(ctx, EnrichedFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].NearbyCount())
	assert.InDelta(t, 0.25, all[0].Nearby[model.CategoryParks][0].DistanceKM, 1e-9)
	assert.NotNil(t, all[1].Nearby[model.CategorySchools])

	require.NoError(t, st.UpsertReport(ctx, model.AnalysisResult{
		PermitID: "BP-1",
		Report: model.ImpactReport{
			AnalysisSummary: model.AnalysisSummary{Title: "Tower", OverallImportance: 5},
		},
		GeneratedAt: time.Now(),
	}))

	pending, err := st.ListEnriched(ctx, EnrichedFilter{PendingOnly: true})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "BP-2", pending[0].Permit.ID)

	limited, err := st.ListEnriched(ctx, EnrichedFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_Reports(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	generated := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	res := model.AnalysisResult{
		PermitID: "BP-9",
		Model:    "test-model",
		Report: model.ImpactReport{
			AnalysisSummary: model.AnalysisSummary{Title: "Mid-rise", Description: "d", OverallImportance: 4},
			AnalyzedInfrastructure: []model.AnalyzedInfrastructure{
				{Name: "Park A", Type: "Park", ImpactScore: -2},
			},
		},
		GeneratedAt: generated,
	}
	require.NoError(t, st.UpsertReport(ctx, res))

	res.Report.AnalysisSummary.OverallImportance = 8
	require.NoError(t, st.UpsertReport(ctx, res))

	got, err := st.GetReport(ctx, "BP-9")
	require.NoError(t, err)
	assert.InDelta(t, 8.0, got.Report.AnalysisSummary.OverallImportance, 0)
	assert.Equal(t, "test-model", got.Model)
	assert.True(t, generated.Equal(got.GeneratedAt))
	require.Len(t, got.Report.AnalyzedInfrastructure, 1)

	list, err := st.ListReports(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = st.GetReport(ctx, "nope")
	assert.True(t, eris.Is(err, ErrNotFound))
}
