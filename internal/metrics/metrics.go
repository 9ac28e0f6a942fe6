// Package metrics exposes Prometheus metrics for the indexing worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/synapse/internal/engine"
	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/queue"
)

// Metrics holds all Prometheus metrics for the application.
// It is both an engine.Sink and a queue.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// Job metrics
	JobsTotal   *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	JobAttempts *prometheus.HistogramVec

	// Engine metrics
	StatusTransitionsTotal *prometheus.CounterVec
	ChunksTotal            *prometheus.CounterVec
	BytesHashedTotal       prometheus.Counter
	TokensEmbeddedTotal    prometheus.Counter
	TokensReleasedTotal    prometheus.Counter
	FlowDuration           *prometheus.HistogramVec
}

var (
	_ engine.Sink    = (*Metrics)(nil)
	_ queue.Observer = (*Metrics)(nil)
)

// NewMetrics creates and registers all metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_jobs_total",
				Help: "Total number of finished queue jobs",
			},
			[]string{"queue", "outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synapse_job_duration_seconds",
				Help:    "Duration of queue jobs including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		JobAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synapse_job_attempts",
				Help:    "Handler attempts spent per job",
				Buckets: []float64{1, 2, 3, 5, 8},
			},
			[]string{"queue"},
		),

		StatusTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_note_status_total",
				Help: "Note status transitions written by the engine",
			},
			[]string{"kind", "status", "reason"},
		),
		ChunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_chunks_total",
				Help: "Chunks inserted, deleted or kept by reconciliation",
			},
			[]string{"op"},
		),
		BytesHashedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "synapse_bytes_hashed_total",
				Help: "Bytes of chunk text hashed",
			},
		),
		TokensEmbeddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "synapse_tokens_embedded_total",
				Help: "Tokens charged to users for new chunks",
			},
		),
		TokensReleasedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "synapse_tokens_released_total",
				Help: "Tokens refunded to users for removed chunks",
			},
		),
		FlowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synapse_flow_duration_seconds",
				Help:    "Time from flow start to a terminal note status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.registry.MustRegister(m.JobsTotal)
	m.registry.MustRegister(m.JobDuration)
	m.registry.MustRegister(m.JobAttempts)

	m.registry.MustRegister(m.StatusTransitionsTotal)
	m.registry.MustRegister(m.ChunksTotal)
	m.registry.MustRegister(m.BytesHashedTotal)
	m.registry.MustRegister(m.TokensEmbeddedTotal)
	m.registry.MustRegister(m.TokensReleasedTotal)
	m.registry.MustRegister(m.FlowDuration)
}

// ObserveJob implements queue.Observer.
func (m *Metrics) ObserveJob(q string, outcome queue.Outcome, attempts int, elapsed time.Duration) {
	m.JobsTotal.WithLabelValues(q, string(outcome)).Inc()
	m.JobDuration.WithLabelValues(q).Observe(elapsed.Seconds())
	m.JobAttempts.WithLabelValues(q).Observe(float64(attempts))
}

// Publish implements engine.Sink.
func (m *Metrics) Publish(ev engine.Event) {
	if ev.Status == "" {
		switch {
		case ev.TokensDelta > 0:
			m.TokensEmbeddedTotal.Add(float64(ev.TokensDelta))
		case ev.TokensDelta < 0:
			m.TokensReleasedTotal.Add(float64(-ev.TokensDelta))
		}
		return
	}

	reason := string(ev.Reason)
	if reason == "" {
		reason = "none"
	}
	m.StatusTransitionsTotal.WithLabelValues(string(ev.Kind), string(ev.Status), reason).Inc()

	if ev.Status != models.StatusCompleted && ev.Status != models.StatusFailedToMemorize {
		return
	}
	// Work counters come from terminal events only, one per flow.
	m.ChunksTotal.WithLabelValues("inserted").Add(float64(ev.Inserted))
	m.ChunksTotal.WithLabelValues("deleted").Add(float64(ev.Deleted))
	m.ChunksTotal.WithLabelValues("unchanged").Add(float64(ev.Unchanged))
	m.BytesHashedTotal.Add(float64(ev.BytesHashed))
	m.FlowDuration.WithLabelValues(string(ev.Kind)).Observe(ev.Elapsed.Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
