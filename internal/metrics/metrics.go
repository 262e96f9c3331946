// Package metrics exposes Prometheus counters for the upload and
// processing pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters
type Metrics struct {
	registry *prometheus.Registry

	DatasetsUploaded    prometheus.Counter
	DatasetsDeduplicate prometheus.Counter
	JobsEnqueued        prometheus.Counter
	JobsSucceeded       prometheus.Counter
	JobsFailed          prometheus.Counter
	JobRetries          prometheus.Counter
}

// New creates the counter set on its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		DatasetsUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "datasets_uploaded_total",
			Help: "Number of new datasets accepted by the upload endpoint",
		}),
		DatasetsDeduplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "datasets_deduplicated_total",
			Help: "Number of uploads answered with an existing dataset by checksum",
		}),
		JobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Number of processing jobs published to the broker",
		}),
		JobsSucceeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobs_succeeded_total",
			Help: "Number of jobs finalized as success",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Number of jobs finalized as failure",
		}),
		JobRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "job_retries_total",
			Help: "Number of transient-failure retry attempts",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
