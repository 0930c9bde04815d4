// Package metrics provides Prometheus collectors for the HTTP layer and
// the inference engine.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	InferenceDuration   prometheus.Histogram
	AnalysesTotal       *prometheus.CounterVec
	BatchSize           prometheus.Histogram
}

// New creates the registry and registers all collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_duration_seconds",
			Help:    "Forward-pass latency of the forgery model.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyses_total",
			Help: "Completed analyses by result label.",
		}, []string{"result"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_analyze_images",
			Help:    "Number of images per batch-analyze request.",
			Buckets: []float64{1, 2, 3, 5, 8, 10},
		}),
	}

	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.InferenceDuration,
		m.AnalysesTotal,
		m.BatchSize,
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveAnalysis records one completed analysis.
func (m *Metrics) ObserveAnalysis(result string, inference time.Duration) {
	m.AnalysesTotal.WithLabelValues(result).Inc()
	m.InferenceDuration.Observe(inference.Seconds())
}
