package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bathing_water"

// Metrics holds the Prometheus counters, histograms, and gauges for the EPA runs.
type Metrics struct {
	PagesFetched      *prometheus.CounterVec   // labels: feed, outcome={ok,empty,error}
	PageFetchDuration *prometheus.HistogramVec // labels: feed
	ProbeFailures     *prometheus.CounterVec   // labels: feed

	MeasurementsMerged   prometheus.Counter
	MeasurementsReplaced prometheus.Counter

	BeachesUpdated prometheus.Gauge
	BeachesFailed  prometheus.Gauge
	RunDuration    prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PagesFetched,
		m.PageFetchDuration,
		m.ProbeFailures,
		m.MeasurementsMerged,
		m.MeasurementsReplaced,
		m.BeachesUpdated,
		m.BeachesFailed,
		m.RunDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "EPA page requests by feed and outcome.",
		}, []string{"feed", "outcome"}),
		PageFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_fetch_duration_seconds",
			Help:      "EPA page request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"feed"}),
		ProbeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_probe_failures_total",
			Help:      "Feeds skipped because the first page could not be read.",
		}, []string{"feed"}),
		MeasurementsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_merged_total",
			Help:      "Measurements offered to the latest-measurement table.",
		}),
		MeasurementsReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_replaced_total",
			Help:      "Measurements that became the latest entry for their beach.",
		}),
		BeachesUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "beaches_updated",
			Help:      "Directory entries with a measurement in the last refresh.",
		}),
		BeachesFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "beaches_failed",
			Help:      "Directory entries without a measurement in the last refresh.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
	}
}
