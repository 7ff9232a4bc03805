package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mapd-tech/civic-impact/internal/batch"
)

func testSummary() batch.RunSummary {
	start := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	return batch.RunSummary{
		RunID:             "run-1",
		Total:             3,
		Processed:         2,
		Succeeded:         1,
		Failed:            1,
		StartedAt:         start,
		FinishedAt:        start.Add(4 * time.Second),
		Elapsed:           4 * time.Second,
		ElapsedSeconds:    4,
		SuccessRate:       50,
		AvgSecondsPerItem: 2,
		Interrupted:       true,
	}
}

func TestExportAll_Schema(t *testing.T) {
	data, err := ExportAll([]Outcome{success("BP-1", 6), failure("BP-2", "analysis: malformed response")}, testSummary())
	require.NoError(t, err)
	js := string(data)

	for _, key := range []string{
		"run_id", "total", "processed", "succeeded", "failed", "success_rate", "started_at",
		"finished_at", "elapsed_seconds", "average_seconds_per_item", "interrupted",
	} {
		assert.True(t, gjson.Get(js, "metadata."+key).Exists(), "metadata.%s", key)
	}
	assert.Equal(t, int64(2), gjson.Get(js, "metadata.processed").Int())
	assert.InDelta(t, 50.0, gjson.Get(js, "metadata.success_rate").Float(), 0)
	assert.True(t, gjson.Get(js, "metadata.interrupted").Bool())

	analyses := gjson.Get(js, "impact_analyses").Array()
	require.Len(t, analyses, 2)
	assert.Equal(t, "BP-1", analyses[0].Get("permit_id").String())
	assert.True(t, analyses[0].Get("success").Bool())
	assert.Equal(t, "Report BP-1", analyses[0].Get("report.AnalysisSummary.title").String())
	assert.False(t, analyses[0].Get("error").Exists())

	assert.Equal(t, "BP-2", analyses[1].Get("permit_id").String())
	assert.False(t, analyses[1].Get("success").Bool())
	assert.False(t, analyses[1].Get("report").Exists())
	assert.Contains(t, analyses[1].Get("error").String(), "malformed")
}

func TestExportAll_Empty(t *testing.T) {
	data, err := ExportAll(nil, batch.RunSummary{RunID: "empty"})
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(data, "impact_analyses").IsArray())
	assert.Empty(t, gjson.GetBytes(data, "impact_analyses").Array())
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteJSON(path, []Outcome{success("BP-1", 6)}, testSummary()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", gjson.GetBytes(data, "metadata.run_id").String())
}

func TestExportAll_PersistFailures(t *testing.T) {
	data, err := ExportAll(
		[]Outcome{success("BP-1", 6), success("BP-2", 4)},
		testSummary(),
		WithPersistFailures(map[string]string{"BP-2": "report: persist BP-2: disk full"}),
	)
	require.NoError(t, err)
	js := string(data)

	assert.False(t, gjson.Get(js, "impact_analyses.0.persist_error").Exists())
	assert.True(t, gjson.Get(js, "impact_analyses.1.success").Bool())
	assert.Contains(t, gjson.Get(js, "impact_analyses.1.persist_error").String(), "disk full")
	assert.True(t, gjson.Get(js, "metadata.persist_failed").Exists())
}
