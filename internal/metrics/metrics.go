package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the review engine.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Answers           *prometheus.CounterVec
	BatchesCompleted  prometheus.Counter
	SessionsStarted   *prometheus.CounterVec
	PersistenceErrors *prometheus.CounterVec
	StoreDuration     *prometheus.HistogramVec
	RemindersSent     prometheus.Counter
}

// NewCollector creates a collector with its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	answers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Total number of answers given in review sessions",
		},
		[]string{"result"},
	)

	batches := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_completed_total",
			Help:      "Total number of batches answered completely",
		},
	)

	sessions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of review sessions started",
		},
		[]string{"outcome"},
	)

	persistenceErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Total number of failed progress writes",
		},
		[]string{"operation"},
	)

	storeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Progress store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	reminders := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Total number of review reminders sent",
		},
	)

	registry.MustRegister(
		answers,
		batches,
		sessions,
		persistenceErrors,
		storeDuration,
		reminders,
	)

	return &Collector{
		registry:          registry,
		Answers:           answers,
		BatchesCompleted:  batches,
		SessionsStarted:   sessions,
		PersistenceErrors: persistenceErrors,
		StoreDuration:     storeDuration,
		RemindersSent:     reminders,
	}
}

// ObserveAnswer counts one answer
func (c *Collector) ObserveAnswer(correct bool) {
	if c == nil {
		return
	}
	result := "forgot"
	if correct {
		result = "remembered"
	}
	c.Answers.WithLabelValues(result).Inc()
}

// ObserveBatchCompleted counts one finished batch
func (c *Collector) ObserveBatchCompleted() {
	if c == nil {
		return
	}
	c.BatchesCompleted.Inc()
}

// ObserveSessionStarted counts a session start, labelled "started" or "empty"
func (c *Collector) ObserveSessionStarted(empty bool) {
	if c == nil {
		return
	}
	outcome := "started"
	if empty {
		outcome = "empty"
	}
	c.SessionsStarted.WithLabelValues(outcome).Inc()
}

// ObservePersistenceError counts a failed store write
func (c *Collector) ObservePersistenceError(op string) {
	if c == nil {
		return
	}
	c.PersistenceErrors.WithLabelValues(op).Inc()
}

// ObserveStoreDuration records how long a store operation took
func (c *Collector) ObserveStoreDuration(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.StoreDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveReminderSent counts one reminder
func (c *Collector) ObserveReminderSent() {
	if c == nil {
		return
	}
	c.RemindersSent.Inc()
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
