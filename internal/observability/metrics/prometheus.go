// Package metrics provides the Prometheus-backed implementation of the
// claimsync Metrics port. Series names follow Prometheus conventions with
// the service name as prefix; they are exposed by the supervisor's /metrics
// endpoint.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements types.Metrics using the Prometheus client
// library. One instance exists per component; all instances share the same
// underlying collectors, differing only in the component label.
type PrometheusMetrics struct {
	component string

	processedTotal  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	fileSizeBytes   *prometheus.HistogramVec
	inProgress      *prometheus.GaugeVec
}

var (
	registerOnce sync.Once
	collectors   *PrometheusMetrics
)

// New creates (or reuses) the shared collectors and returns a view scoped to
// the given component. Registration with the default registry happens once;
// the service name of the first caller wins the metric prefix.
//
// Registered series:
//   - {service}_processed_total{status, type, component}
//   - {service}_errors_total{error_type, operation, component}
//   - {service}_duration_seconds{operation, component}
//   - {service}_file_size_bytes{file_type, component}
//   - {service}_in_progress{operation, component}
func New(serviceName, component string) *PrometheusMetrics {
	registerOnce.Do(func() {
		collectors = &PrometheusMetrics{
			processedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: fmt.Sprintf("%s_processed_total", serviceName),
					Help: fmt.Sprintf("Total processed items by %s", serviceName),
				},
				[]string{"status", "type", "component"},
			),
			errorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: fmt.Sprintf("%s_errors_total", serviceName),
					Help: fmt.Sprintf("Total errors in %s", serviceName),
				},
				[]string{"error_type", "operation", "component"},
			),
			durationSeconds: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    fmt.Sprintf("%s_duration_seconds", serviceName),
					Help:    fmt.Sprintf("Operation duration in %s", serviceName),
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation", "component"},
			),
			fileSizeBytes: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name: fmt.Sprintf("%s_file_size_bytes", serviceName),
					Help: fmt.Sprintf("Artifact sizes handled by %s", serviceName),
					// 1KB up to 1GB, exponential. Settlement spreadsheets
					// cluster around the 100KB-10MB buckets.
					Buckets: []float64{
						1024,
						10240,
						102400,
						1048576,
						10485760,
						104857600,
						1073741824,
					},
				},
				[]string{"file_type", "component"},
			),
			inProgress: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: fmt.Sprintf("%s_in_progress", serviceName),
					Help: fmt.Sprintf("Operations in progress in %s", serviceName),
				},
				[]string{"operation", "component"},
			),
		}

		prometheus.MustRegister(
			collectors.processedTotal,
			collectors.errorsTotal,
			collectors.durationSeconds,
			collectors.fileSizeBytes,
			collectors.inProgress,
		)
	})

	return &PrometheusMetrics{
		component:       component,
		processedTotal:  collectors.processedTotal,
		errorsTotal:     collectors.errorsTotal,
		durationSeconds: collectors.durationSeconds,
		fileSizeBytes:   collectors.fileSizeBytes,
		inProgress:      collectors.inProgress,
	}
}

// RecordSuccess increments the processed counter with status="success".
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType, m.component).Inc()
}

// RecordError increments both the processed counter (status="error") and the
// detailed error counter, giving high-level failure rates plus per-category
// breakdowns.
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType, m.component).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType, m.component).Inc()
}

// RecordDuration adds an observation to the duration histogram.
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation, m.component).Observe(duration)
}

// RecordFileSize adds an observation to the artifact size histogram.
func (m *PrometheusMetrics) RecordFileSize(fileType string, bytes int64) {
	m.fileSizeBytes.WithLabelValues(fileType, m.component).Observe(float64(bytes))
}

// StartOperation increments the in-progress gauge. Pair with EndOperation.
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation, m.component).Inc()
}

// EndOperation decrements the in-progress gauge.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation, m.component).Dec()
}
