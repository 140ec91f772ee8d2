package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the engine's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	eventsCommitted *prometheus.CounterVec
	commitFailures  *prometheus.CounterVec
	dispatchSeconds *prometheus.HistogramVec
	eventsRelayed   *prometheus.CounterVec
	relayLastID     prometheus.Gauge
	sweepTimeouts   prometheus.Counter
	httpRequests    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permission_events_committed_total",
			Help: "Permission events durably appended, by event type.",
		}, []string{"event_type"}),
		commitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permission_commit_failures_total",
			Help: "Failed commits, by event type and stage (persist, dispatch).",
		}, []string{"event_type", "stage"}),
		dispatchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "permission_event_dispatch_seconds",
			Help:    "Time spent running handlers for one emitted event.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event_type"}),
		eventsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permission_events_relayed_total",
			Help: "Events published to the message broker, by event type.",
		}, []string{"event_type"}),
		relayLastID: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "permission_relay_last_event_id",
			Help: "Id of the event the relay published most recently.",
		}),
		sweepTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "permission_sweep_timeouts_total",
			Help: "Stale requests timed out by the sweep.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.eventsCommitted, m.commitFailures, m.dispatchSeconds,
			m.eventsRelayed, m.relayLastID, m.sweepTimeouts, m.httpRequests,
		)
	}
	return m
}

// MetricsHandler exposes the collectors of g in the prometheus text format.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Committed(eventType string) {
	if m == nil {
		return
	}
	m.eventsCommitted.WithLabelValues(eventType).Inc()
}

func (m *Metrics) CommitFailed(eventType, stage string) {
	if m == nil {
		return
	}
	m.commitFailures.WithLabelValues(eventType, stage).Inc()
}

func (m *Metrics) Dispatched(eventType string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchSeconds.WithLabelValues(eventType).Observe(d.Seconds())
}

func (m *Metrics) Relayed(eventType string, lastID int64) {
	if m == nil {
		return
	}
	m.eventsRelayed.WithLabelValues(eventType).Inc()
	m.relayLastID.Set(float64(lastID))
}

func (m *Metrics) TimedOut() {
	if m == nil {
		return
	}
	m.sweepTimeouts.Inc()
}

func (m *Metrics) Request(method, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, status).Inc()
}
