// Package metrics exposes prometheus instrumentation for ingestion, the
// aggregation scheduler, and the federated analytics router.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ingestOutcomes *prometheus.CounterVec

	aggregationRuns     *prometheus.CounterVec
	aggregationKeys     *prometheus.CounterVec
	aggregationDuration prometheus.Histogram

	analyticsQueries *prometheus.CounterVec

	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		ingestOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetra",
			Name:      "usage_ingest_records_total",
			Help:      "Ingested usage records by outcome.",
		}, []string{"outcome"}),
		aggregationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetra",
			Name:      "aggregation_runs_total",
			Help:      "Aggregation runs by result.",
		}, []string{"result"}),
		aggregationKeys: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetra",
			Name:      "aggregation_keys_total",
			Help:      "Dirty keys recomputed by result.",
		}, []string{"result"}),
		aggregationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telemetra",
			Name:      "aggregation_run_duration_seconds",
			Help:      "Wall time of aggregation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		analyticsQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetra",
			Name:      "analytics_queries_total",
			Help:      "Analytics queries by source plan and completeness.",
		}, []string{"plan", "partial"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telemetra",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncIngestOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ingestOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAggregationRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.aggregationRuns.WithLabelValues(result).Inc()
	m.aggregationDuration.Observe(d.Seconds())
}

func (m *Metrics) IncAggregationKey(result string) {
	if m == nil {
		return
	}
	m.aggregationKeys.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAnalyticsQuery(plan string, partial bool) {
	if m == nil {
		return
	}
	m.analyticsQueries.WithLabelValues(plan, strconv.FormatBool(partial)).Inc()
}

// GinMiddleware records request latency keyed by route template.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
