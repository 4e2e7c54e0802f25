package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	TasksProcessed *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	Regenerations  prometheus.Counter
	ScrapeDuration prometheus.Histogram
	QueueDepth     prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		TasksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapeflow_tasks_processed_total",
			Help: "The total number of tasks that reached a terminal state",
		}, []string{"status"}), // 'completed', 'failed'
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapeflow_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'extraction', 'generation', 'persistence'
		Regenerations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scrapeflow_rule_regenerations_total",
			Help: "The total number of rule set regenerations triggered by failed extractions",
		}),
		ScrapeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scrapeflow_scrape_duration_seconds",
			Help:    "Wall time of one full task pipeline",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scrapeflow_queue_depth",
			Help: "Number of tasks waiting for a worker",
		}),
	}
}

func (m *Metrics) IncProcessed(status string) {
	m.TasksProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) IncError(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
