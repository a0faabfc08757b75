// Package metrics holds the Prometheus collectors for background sync.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kappi"

// Sync tracks drain passes. A nil *Sync is valid and records nothing.
type Sync struct {
	submitted prometheus.Counter
	failed    prometheus.Counter
	skipped   prometheus.Counter
	pending   prometheus.Gauge
	duration  prometheus.Histogram
}

// NewSync creates the sync collectors and registers them on reg.
func NewSync(reg prometheus.Registerer) *Sync {
	m := &Sync{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_submitted_total",
			Help:      "Records acknowledged by the remote service.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_failed_total",
			Help:      "Submission attempts that left the record pending.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drains_skipped_total",
			Help:      "Drain passes skipped for lack of a usable credential.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pending_records",
			Help:      "Records still queued after the last drain.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "drain_duration_seconds",
			Help:      "Wall time of drain passes.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.submitted, m.failed, m.skipped, m.pending, m.duration)
	return m
}

// ObserveDrain records one completed pass.
func (m *Sync) ObserveDrain(submitted, failed, pending int, took time.Duration) {
	if m == nil {
		return
	}
	m.submitted.Add(float64(submitted))
	m.failed.Add(float64(failed))
	m.pending.Set(float64(pending))
	m.duration.Observe(took.Seconds())
}

func (m *Sync) ObserveSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

// RegisterBuildInfo exposes kappi_build_info{version,commit} = 1.
func RegisterBuildInfo(reg prometheus.Registerer, version, commit string) {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "kappi build information.",
	}, []string{"version", "commit"})
	reg.MustRegister(g)
	g.WithLabelValues(version, commit).Set(1)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
