// Package observability holds the Prometheus metrics of the briefing engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "skybrief"

// Metrics holds the Prometheus counters and histograms for the engine.
type Metrics struct {
	// Decoding metrics.
	Decodes *prometheus.CounterVec // labels: product, outcome={ok,partial,error}

	// Source aggregator metrics.
	CacheLookups   *prometheus.CounterVec   // labels: product, result={hit,miss,stale}
	SourceAttempts *prometheus.CounterVec   // labels: source, outcome={success,error}
	Fetches        *prometheus.CounterVec   // labels: product, provenance
	SharedFetches  prometheus.Counter       // callers that joined an in-flight fetch
	FetchDuration  *prometheus.HistogramVec // labels: product

	// Briefing metrics.
	BriefingDuration prometheus.Histogram
	BriefingAlerts   *prometheus.CounterVec // labels: reason
}

func newMetrics() *Metrics {
	return &Metrics{
		Decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_total",
			Help:      "Reports decoded by product and outcome.",
		}, []string{"product", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by product and result.",
		}, []string{"product", "result"}),
		SourceAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_attempts_total",
			Help:      "Individual source attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Completed fetches by product and provenance.",
		}, []string{"product", "provenance"}),
		SharedFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_fetches_total",
			Help:      "Callers that joined a fetch already in flight.",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetches that missed the cache.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"product"}),
		BriefingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "briefing_duration_seconds",
			Help:      "Duration of route briefings.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BriefingAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "briefing_alerts_total",
			Help:      "Alerts raised by route briefings by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Decodes,
		m.CacheLookups,
		m.SourceAttempts,
		m.Fetches,
		m.SharedFetches,
		m.FetchDuration,
		m.BriefingDuration,
		m.BriefingAlerts,
	}
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
