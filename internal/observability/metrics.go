// Package observability exposes the service's prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the runner and handlers update.
type Metrics struct {
	SessionsSubmitted prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    prometheus.Counter
	RunDuration       prometheus.Histogram
	ProgressEvents    prometheus.Counter
}

// New registers the service metrics on reg. Pass prometheus.DefaultRegisterer
// in production; tests use a private registry to avoid collisions.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "medreflect_sessions_submitted_total",
			Help: "Number of reflection sessions submitted.",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "medreflect_sessions_completed_total",
			Help: "Number of reflection sessions completed successfully.",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "medreflect_sessions_failed_total",
			Help: "Number of reflection sessions that ended in error.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medreflect_run_duration_seconds",
			Help:    "Wall-clock duration of full reflection runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ProgressEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "medreflect_progress_events_total",
			Help: "Number of progress events emitted by runs.",
		}),
	}
}
