package dexgo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector on top of Prometheus
// collectors. All collectors are registered at construction time.
type PrometheusMetricsCollector struct {
	opLatency   *prometheus.HistogramVec
	resolutions *prometheus.CounterVec
	ichunks     prometheus.Counter
	records     *prometheus.CounterVec
}

// NewPrometheusMetricsCollector creates and registers the dexgo collectors.
// If reg is nil, prometheus.DefaultRegisterer is used. Registering twice on
// the same registry panics, so create one collector per process.
func NewPrometheusMetricsCollector(reg prometheus.Registerer) *PrometheusMetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &PrometheusMetricsCollector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dexgo",
			Name:      "operation_latency_seconds",
			Help:      "Latency of orchestration operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexgo",
			Name:      "status_resolutions_total",
			Help:      "Status resolutions by resolved state.",
		}, []string{"state"}),
		ichunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dexgo",
			Name:      "materialized_ichunks_total",
			Help:      "Chunk locators persisted by materializations.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dexgo",
			Name:      "extract_records_total",
			Help:      "Records collected by ephemeral jobs.",
		}, []string{"kind"}),
	}

	reg.MustRegister(c.opLatency, c.resolutions, c.ichunks, c.records)

	return c
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordSubmit implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordSubmit(duration time.Duration, err error) {
	c.opLatency.WithLabelValues("submit", outcomeLabel(err)).Observe(duration.Seconds())
}

// RecordStatus implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordStatus(status string, duration time.Duration, err error) {
	c.opLatency.WithLabelValues("status", outcomeLabel(err)).Observe(duration.Seconds())
	if err == nil {
		c.resolutions.WithLabelValues(status).Inc()
	}
}

// RecordMaterialize implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordMaterialize(ichunks int, duration time.Duration, err error) {
	c.opLatency.WithLabelValues("materialize", outcomeLabel(err)).Observe(duration.Seconds())
	if err == nil {
		c.ichunks.Add(float64(ichunks))
	}
}

// RecordExtract implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordExtract(kind string, records int, duration time.Duration, err error) {
	c.opLatency.WithLabelValues("extract", outcomeLabel(err)).Observe(duration.Seconds())
	if err == nil {
		c.records.WithLabelValues(kind).Add(float64(records))
	}
}

// RecordReplace implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordReplace(duration time.Duration, err error) {
	c.opLatency.WithLabelValues("replace", outcomeLabel(err)).Observe(duration.Seconds())
}

// RecordDelete implements MetricsCollector.
func (c *PrometheusMetricsCollector) RecordDelete(duration time.Duration, err error) {
	c.opLatency.WithLabelValues("delete", outcomeLabel(err)).Observe(duration.Seconds())
}
