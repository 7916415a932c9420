package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus metrics for the ingestion pipeline. A nil
// *Collector is valid and records nothing, which keeps tests free of global
// registry collisions.
type Collector struct {
	ingestRuns    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// NewCollector creates and registers all ingestion metrics. Call once per
// process.
func NewCollector() *Collector {
	return &Collector{
		ingestRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schematic_ingest_runs_total",
				Help: "Total number of ingestion runs by terminal outcome",
			},
			[]string{"outcome"},
		),
		fetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "schematic_artifact_fetch_duration_seconds",
				Help:    "Duration of individual artifact downloads from the renderer",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"artifact"},
		),
	}
}

// IngestRun counts one terminal ingestion outcome.
func (c *Collector) IngestRun(outcome string) {
	if c == nil {
		return
	}
	c.ingestRuns.WithLabelValues(outcome).Inc()
}

// ObserveArtifactFetch records the duration of one artifact download.
func (c *Collector) ObserveArtifactFetch(artifact string, d time.Duration) {
	if c == nil {
		return
	}
	c.fetchDuration.WithLabelValues(artifact).Observe(d.Seconds())
}
