// Package prometheus exposes the application metrics registry.  All metric
// names live here so that dashboards and alerts have a single source of truth;
// business code records observations through the typed helpers rather than
// touching prometheus primitives directly.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates every application-level metric of the docketing platform.
type Metrics struct {
	registry *prometheus.Registry

	// Rule engine
	EventsProcessed *prometheus.CounterVec   // labels: event_code, outcome
	RulesMatched    *prometheus.CounterVec   // labels: trigger_code, action
	TasksCreated    *prometheus.CounterVec   // labels: task_code
	CascadeDepth    prometheus.Histogram     // matters visited per cascade
	EngineDuration  *prometheus.HistogramVec // labels: event_code

	// Renewal workflow
	RenewalTransitions *prometheus.CounterVec // labels: action
	RenewalBatchSize   prometheus.Histogram
	FeeBatchErrors     prometheus.Counter

	// HTTP
	HTTPRequests *prometheus.CounterVec   // labels: method, path, status
	HTTPDuration *prometheus.HistogramVec // labels: method, path
}

// NewMetrics constructs a Metrics set registered on a private registry.
// Process and Go runtime collectors are included so a single /metrics
// endpoint covers the whole binary.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(prometheus.NewGoCollector())

	m := &Metrics{
		registry: reg,
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Lifecycle events processed by the rule engine.",
		}, []string{"event_code", "outcome"}),
		RulesMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_matched_total",
			Help:      "Task rules matched, by trigger and resulting action.",
		}, []string{"trigger_code", "action"}),
		TasksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Tasks created by the rule engine.",
		}, []string{"task_code"}),
		CascadeDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cascade_matters_visited",
			Help:      "Matters visited per cascading recalculation.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50},
		}),
		EngineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_duration_seconds",
			Help:      "Rule engine run duration per event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_code"}),
		RenewalTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renewal_transitions_total",
			Help:      "Renewal workflow transitions, by bulk action.",
		}, []string{"action"}),
		RenewalBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "renewal_batch_size",
			Help:      "Task count per bulk renewal operation.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		FeeBatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_batch_errors_total",
			Help:      "Per-item failures during batch fee calculation.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.EventsProcessed, m.RulesMatched, m.TasksCreated, m.CascadeDepth,
		m.EngineDuration, m.RenewalTransitions, m.RenewalBatchSize,
		m.FeeBatchErrors, m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Handler returns the HTTP handler serving the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveEngineRun records one rule engine invocation.
func (m *Metrics) ObserveEngineRun(eventCode, outcome string, took time.Duration) {
	m.EventsProcessed.WithLabelValues(eventCode, outcome).Inc()
	m.EngineDuration.WithLabelValues(eventCode).Observe(took.Seconds())
}

// ObserveBulkAction records one bulk renewal workflow operation.
func (m *Metrics) ObserveBulkAction(action string, count int) {
	m.RenewalTransitions.WithLabelValues(action).Add(float64(count))
	m.RenewalBatchSize.Observe(float64(count))
}
