// Package metrics exposes prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	JobsStarted   *prometheus.CounterVec
	JobsCompleted prometheus.Counter
	JobsFailed    *prometheus.CounterVec
	JobsDeduped   prometheus.Counter
	StageDuration *prometheus.HistogramVec
	StageRetries  *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

// New builds and registers the collectors on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoiceflow_jobs_started_total",
			Help: "Invoice jobs accepted by the pipeline.",
		}, []string{"merchant_id"}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invoiceflow_jobs_completed_total",
			Help: "Invoice jobs that reached the Completed stage.",
		}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoiceflow_jobs_failed_total",
			Help: "Invoice jobs that reached the Failed state.",
		}, []string{"stage", "kind"}),
		JobsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invoiceflow_jobs_deduplicated_total",
			Help: "Payment events ignored because the payment id was already processed.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "invoiceflow_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		StageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoiceflow_stage_retries_total",
			Help: "Retries performed per stage.",
		}, []string{"stage"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoiceflow_notifications_total",
			Help: "Notification attempts by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.JobsStarted,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsDeduped,
		m.StageDuration,
		m.StageRetries,
		m.Notifications,
	)
	return m
}

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	return reg
}

func provide(reg *prometheus.Registry) *Metrics {
	return New(reg)
}

var Module = fx.Module("observability.metrics",
	fx.Provide(NewRegistry),
	fx.Provide(provide),
)
