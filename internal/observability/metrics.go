package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus counters for the SLA core.
type Metrics struct {
	SweepRuns          prometheus.Counter
	SweepCaseFailures  prometheus.Counter
	CasesEvaluated     *prometheus.CounterVec
	EscalationsFired   *prometheus.CounterVec
	OrchestratorCalls  *prometheus.CounterVec
	OrchestratorRetry  prometheus.Counter
	AutoAssignments    prometheus.Counter
	NotificationErrors prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPErrors         *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// NewMetrics registers and returns the metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		SweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sla_sweep_runs_total",
			Help: "Number of SLA monitoring sweeps executed.",
		}),
		SweepCaseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sla_sweep_case_failures_total",
			Help: "Per-case evaluation failures isolated during sweeps.",
		}),
		CasesEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_cases_evaluated_total",
			Help: "Cases evaluated for SLA compliance, by resulting status.",
		}, []string{"status"}),
		EscalationsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sla_escalations_fired_total",
			Help: "Escalations fired, by kind.",
		}, []string{"kind"}),
		OrchestratorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_orchestrator_calls_total",
			Help: "Orchestrator calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		OrchestratorRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_orchestrator_retries_total",
			Help: "Retried orchestrator attempts.",
		}),
		AutoAssignments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignment_auto_total",
			Help: "Successful automatic technician assignments.",
		}),
		NotificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_delivery_errors_total",
			Help: "Best-effort notification deliveries that failed.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "HTTP requests that failed, by route, method and error code.",
		}, []string{"path", "method", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		m.SweepRuns,
		m.SweepCaseFailures,
		m.CasesEvaluated,
		m.EscalationsFired,
		m.OrchestratorCalls,
		m.OrchestratorRetry,
		m.AutoAssignments,
		m.NotificationErrors,
		m.HTTPRequests,
		m.HTTPErrors,
		m.RequestDuration,
	)
	return m
}

// RecordRequest counts a served request and observes its latency.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError counts a failed request by its domain error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(path, method, code).Inc()
}
