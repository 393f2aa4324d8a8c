// Package telemetry exposes Prometheus metrics for the event store, the
// decision sweeper and the HTTP API.
//
// Usage:
//
//	metrics := telemetry.New()
//	store := eventstore.New(registry, eventstore.WithObserver(metrics))
//	sweeper := decision.NewSweeper(registry, analyzer, decision.WithObserver(metrics))
//	router.Handle("/metrics", metrics.Handler())
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/abkit/pkg/experiment"
)

const namespace = "abkit"

// Metrics implements eventstore.Observer and decision.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Events counts metric events by experiment and outcome.
	// Labels: experiment, outcome (recorded|duplicate|dropped)
	Events *prometheus.CounterVec

	// EventsRejected counts events failing validation.
	// Labels: reason (unknown_experiment|unknown_variant|unknown_metric|closed|invalid)
	EventsRejected *prometheus.CounterVec

	// EventsDropped counts events lost from the raw log.
	// Labels: reason (closed|buffer_full|log_failed)
	EventsDropped *prometheus.CounterVec

	// Decisions counts engine verdicts.
	// Labels: experiment, action (continue|promote|abort)
	Decisions *prometheus.CounterVec

	// SweepDuration measures a full decision sweep in seconds.
	SweepDuration prometheus.Histogram

	// SweepExperiments is the number of live experiments seen by the last sweep.
	SweepExperiments prometheus.Gauge

	// HTTPRequests counts API requests.
	// Labels: method, route, status
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration measures API latency in seconds.
	// Labels: method, route
	HTTPDuration *prometheus.HistogramVec
}

// New creates metrics on a private registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Metric events by experiment and outcome",
		}, []string{"experiment", "outcome"}),
		EventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Metric events rejected by validation",
		}, []string{"reason"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Metric events dropped from the raw event log",
		}, []string{"reason"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decision engine verdicts by experiment and action",
		}, []string{"experiment", "action"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of decision sweeps",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		SweepExperiments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweep_experiments",
			Help:      "Live experiments analyzed by the last sweep",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) EventRecorded(experimentID, _, _ string) {
	m.Events.WithLabelValues(experimentID, "recorded").Inc()
}

func (m *Metrics) EventDuplicate(experimentID string) {
	m.Events.WithLabelValues(experimentID, "duplicate").Inc()
}

func (m *Metrics) EventDropped(experimentID, reason string) {
	if experimentID != "" {
		m.Events.WithLabelValues(experimentID, "dropped").Inc()
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventRejected(reason string) {
	m.EventsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) DecisionMade(experimentID string, action experiment.Action) {
	m.Decisions.WithLabelValues(experimentID, string(action.Kind)).Inc()
}

func (m *Metrics) SweepCompleted(experiments int, d time.Duration) {
	m.SweepDuration.Observe(d.Seconds())
	m.SweepExperiments.Set(float64(experiments))
}

// ObserveHTTP records one API request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
