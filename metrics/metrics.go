// Package metrics holds the engine's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	Transitions   *prometheus.CounterVec
	Reports       *prometheus.CounterVec
	TaskRuns      *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	Notifications *prometheus.CounterVec
	AuditFindings *prometheus.CounterVec
}

// New creates the collectors on a fresh registry. Using a private registry keeps
// tests independent of the global default registerer.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Automatic booking transitions by kind and outcome (applied, conflict, error).",
		}, []string{"kind", "outcome"}),
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reports_total",
			Help:      "Payment report generation attempts by outcome (created, skipped, error).",
		}, []string{"outcome"}),
		TaskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_task_runs_total",
			Help:      "Scheduler task runs by task name.",
		}, []string{"task"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_task_duration_seconds",
			Help:      "Scheduler task duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_events_total",
			Help:      "Notification outbox deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		AuditFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_findings_total",
			Help:      "Ledger and consistency findings by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		m.Transitions, m.Reports, m.TaskRuns, m.TaskDuration, m.Notifications, m.AuditFindings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Noop returns collectors that are registered nowhere visible; used when metrics are disabled.
func Noop() *Metrics {
	return New("noop")
}
