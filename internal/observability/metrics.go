package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "squad"

// Metrics holds the Prometheus collectors for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	assignments   *prometheus.CounterVec
	txRetries     prometheus.Counter
	squadsOpened  *prometheus.CounterVec
	jobsEnqueued  prometheus.Counter
	jobsCoalesced prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobAttempts   prometheus.Histogram
	jobsPruned    prometheus.Counter
	jobsReclaimed prometheus.Counter
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP errors by route, method and error code.",
		}, []string{"route", "method", "code"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "attempts_total",
			Help:      "Assignment transactions by outcome (assigned or error kind).",
		}, []string{"outcome"}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "tx_retries_total",
			Help:      "Assignment transactions retried after a write conflict.",
		}),
		squadsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "squads_opened_total",
			Help:      "Squads opened by age group.",
		}, []string{"age_group"}),
		jobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_enqueued_total",
			Help:      "Assignment jobs created.",
		}),
		jobsCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_coalesced_total",
			Help:      "Triggers folded into an existing waiting or active job.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_finished_total",
			Help:      "Jobs reaching a terminal state, by state and failure kind.",
		}, []string{"state", "kind"}),
		jobAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_attempts",
			Help:      "Attempts used per finished job.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		}),
		jobsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_pruned_total",
			Help:      "Terminal jobs discarded after the retention window.",
		}),
		jobsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_reclaimed_total",
			Help:      "Active jobs taken over after their worker stopped heartbeating.",
		}),
	}
	reg.MustRegister(
		m.requests, m.requestDuration, m.errors,
		m.assignments, m.txRetries, m.squadsOpened,
		m.jobsEnqueued, m.jobsCoalesced, m.jobsFinished, m.jobAttempts, m.jobsPruned, m.jobsReclaimed,
	)
	return m
}

// Registry exposes the registry for the /metrics handler and for gauges
// registered by other packages.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordAssignment counts an assignment outcome.
func (m *Metrics) RecordAssignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

// RecordTxRetry counts a conflict-driven transaction retry.
func (m *Metrics) RecordTxRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

// RecordSquadOpened counts a newly opened squad.
func (m *Metrics) RecordSquadOpened(ageGroup string) {
	if m == nil {
		return
	}
	m.squadsOpened.WithLabelValues(ageGroup).Inc()
}

// RecordEnqueue counts a trigger; coalesced triggers reuse an existing job.
func (m *Metrics) RecordEnqueue(coalesced bool) {
	if m == nil {
		return
	}
	if coalesced {
		m.jobsCoalesced.Inc()
		return
	}
	m.jobsEnqueued.Inc()
}

// RecordJobFinished counts a job reaching completed or failed.
func (m *Metrics) RecordJobFinished(state, kind string, attempts int) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(state, kind).Inc()
	m.jobAttempts.Observe(float64(attempts))
}

// RecordPruned counts jobs removed by the retention janitor.
func (m *Metrics) RecordPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.jobsPruned.Add(float64(n))
}

// RecordReclaim counts an active job handed to a new worker.
func (m *Metrics) RecordReclaim() {
	if m == nil {
		return
	}
	m.jobsReclaimed.Inc()
}
