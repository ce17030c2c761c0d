package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus collectors exported by qaflow. A nil
// *Metrics records nothing.
type Metrics struct {
	activePollers prometheus.Gauge
	pollTicks     prometheus.Counter
	terminal      *prometheus.CounterVec
	archiveFetch  *prometheus.CounterVec
	renderSeconds prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		activePollers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "qaflow",
			Name:      "active_pollers",
			Help:      "Execution pollers currently running.",
		}),
		pollTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "qaflow",
			Name:      "poll_ticks_total",
			Help:      "Result store queries issued by pollers.",
		}),
		terminal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qaflow",
			Name:      "poll_terminal_total",
			Help:      "Poller lifecycles finished, by terminal status.",
		}, []string{"status"}),
		archiveFetch: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qaflow",
			Name:      "archive_fetch_total",
			Help:      "Artifact archive fetches, by result.",
		}, []string{"result"}),
		renderSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qaflow",
			Name:      "report_render_seconds",
			Help:      "Time spent producing a report, fetch included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

func (m *Metrics) PollerStarted() {
	if m == nil {
		return
	}
	m.activePollers.Inc()
}

func (m *Metrics) PollerStopped() {
	if m == nil {
		return
	}
	m.activePollers.Dec()
}

func (m *Metrics) PollTick() {
	if m == nil {
		return
	}
	m.pollTicks.Inc()
}

func (m *Metrics) Terminal(status string) {
	if m == nil {
		return
	}
	m.terminal.WithLabelValues(status).Inc()
}

// ArchiveFetch counts a fetch outcome: ok, expired, fetch_failed or
// extraction_failed.
func (m *Metrics) ArchiveFetch(result string) {
	if m == nil {
		return
	}
	m.archiveFetch.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRender(d time.Duration) {
	if m == nil {
		return
	}
	m.renderSeconds.Observe(d.Seconds())
}
