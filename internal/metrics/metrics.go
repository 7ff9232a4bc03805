// Package metrics registers the Prometheus collectors for analysis runs and
// the query API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ItemsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impact_items_processed_total",
		Help: "Permits processed by analysis runs, by result",
	}, []string{"result"})
	BatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impact_batches_total",
		Help: "Analysis batches drained",
	})
	AnalysisDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "impact_analysis_duration_seconds",
		Help:    "Duration of one permit analysis call",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})
	ReportsPersistedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impact_reports_persisted_total",
		Help: "Impact reports written to the store",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "impact_http_requests_total",
		Help: "Query API requests by route and status",
	}, []string{"route", "status"})
	HTTPDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "impact_http_request_duration_ms",
		Help:    "Query API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impact_cache_hits_total",
		Help: "Response cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "impact_cache_misses_total",
		Help: "Response cache misses",
	})
)

func init() {
	prometheus.MustRegister(ItemsProcessedTotal)
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(AnalysisDurationSeconds)
	prometheus.MustRegister(ReportsPersistedTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPDurationMs)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler { return promhttp.Handler() }

// ObserveBatch counts one drained batch of outcomes.
func ObserveBatch[O interface{ OK() bool }](outcomes []O) {
	BatchesTotal.Inc()
	for _, o := range outcomes {
		if o.OK() {
			ItemsProcessedTotal.WithLabelValues("succeeded").Inc()
		} else {
			ItemsProcessedTotal.WithLabelValues("failed").Inc()
		}
	}
}

// ObserveAnalysis records the duration of one analysis call started at begin.
func ObserveAnalysis(begin time.Time) {
	AnalysisDurationSeconds.Observe(time.Since(begin).Seconds())
}

// ObserveRequest records one served request.
func ObserveRequest(route string, status int, begin time.Time) {
	HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPDurationMs.WithLabelValues(route).Observe(float64(time.Since(begin).Milliseconds()))
}
