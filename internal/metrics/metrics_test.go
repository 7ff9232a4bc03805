package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome bool

func (o outcome) OK() bool { return bool(o) }

func TestObserveBatch(t *testing.T) {
	batches := testutil.ToFloat64(BatchesTotal)
	ok := testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues("succeeded"))
	failed := testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues("failed"))

	ObserveBatch([]outcome{true, false, true})

	assert.InDelta(t, batches+1, testutil.ToFloat64(BatchesTotal), 0)
	assert.InDelta(t, ok+2, testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues("succeeded")), 0)
	assert.InDelta(t, failed+1, testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues("failed")), 0)
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/health", "200"))

	ObserveRequest("/health", http.StatusOK, time.Now())

	assert.InDelta(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/health", "200")), 0)
}

func TestObserveAnalysis(t *testing.T) {
	ObserveAnalysis(time.Now().Add(-time.Second))
	assert.Equal(t, 1, testutil.CollectAndCount(AnalysisDurationSeconds))
}

func TestHandlerExposesCollectors(t *testing.T) {
	CacheHitsTotal.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "impact_cache_hits_total")
	assert.Contains(t, body, "impact_batches_total")
}
