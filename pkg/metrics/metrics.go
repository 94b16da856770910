package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all dispatch-engine metrics
type Metrics struct {
	// Broadcast run metrics
	BroadcastsStarted  prometheus.Counter
	BroadcastsFinished *prometheus.CounterVec
	ActiveRuns         prometheus.Gauge
	RunDuration        prometheus.Histogram

	// Per-send metrics
	MessagesSent   *prometheus.CounterVec
	MessagesFailed *prometheus.CounterVec
	SendDuration   *prometheus.HistogramVec
	PacingDelay    prometheus.Histogram

	// Collaborator metrics
	DatabaseOperations *prometheus.CounterVec
	QueueOperations    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics(namespace, subsystem string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewMetricsWith registers on an explicit registerer; tests pass a
// fresh prometheus.NewRegistry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BroadcastsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "broadcasts_started_total",
			Help:      "Total number of broadcast runs picked up by the dispatcher",
		}),
		BroadcastsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "broadcasts_finished_total",
			Help:      "Total number of broadcast runs finished, by final status",
		}, []string{"status"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_runs",
			Help:      "Number of broadcast runs currently in flight",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of broadcast runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_sent_total",
			Help:      "Total number of messages delivered, by channel",
		}, []string{"channel"}),
		MessagesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_failed_total",
			Help:      "Total number of messages that the provider rejected, by channel",
		}, []string{"channel"}),
		SendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "send_duration_seconds",
			Help:      "Duration of individual provider send calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		PacingDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pacing_delay_seconds",
			Help:      "Computed inter-message pacing delays",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30, 60},
		}),
		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		QueueOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_operations_total",
			Help:      "Total number of dispatch-queue operations",
		}, []string{"operation", "status"}),
	}
}
