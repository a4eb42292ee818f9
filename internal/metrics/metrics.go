package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memora_agent"

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the agent's collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ticks           *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	skipped         prometheus.Counter
	pipelineResults *prometheus.CounterVec
	inFlight        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scan ticks completed, by result.",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of a scan tick including the join of its uploads.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_skipped_total",
			Help:      "Entries skipped because the local index already has them.",
		}),
		pipelineResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_results_total",
			Help:      "Directory registrations and file uploads, by kind and result.",
		}, []string{"kind", "result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uploads_in_flight",
			Help:      "File uploads currently holding a worker slot.",
		}),
	}

	m.registry.MustRegister(
		m.ticks,
		m.tickDuration,
		m.skipped,
		m.pipelineResults,
		m.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom handlers
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTick(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(result(err)).Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) Skipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func (m *Metrics) PipelineResult(kind string, err error) {
	if m == nil {
		return
	}
	m.pipelineResults.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) UploadStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) UploadFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
