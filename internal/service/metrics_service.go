package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the deletion
// workflow. A nil service is safe everywhere and records nothing.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	deletionCreated   prometheus.Counter
	deletionConfirmed prometheus.Counter
	recordsRedacted   *prometheus.CounterVec
	requestsReaped    prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	deletionCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deletion_requests_created_total",
		Help: "Total deletion requests opened",
	})

	deletionConfirmed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deletion_requests_confirmed_total",
		Help: "Total deletion requests verified by the subject",
	})

	recordsRedacted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonymized_records_total",
		Help: "Total records redacted by the anonymization pass",
	}, []string{"record_type"})

	requestsReaped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deletion_requests_reaped_total",
		Help: "Total stale unverified requests removed by the reaper",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, deletionCreated, deletionConfirmed, recordsRedacted, requestsReaped, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		deletionCreated:   deletionCreated,
		deletionConfirmed: deletionConfirmed,
		recordsRedacted:   recordsRedacted,
		requestsReaped:    requestsReaped,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordRequestCreated counts a new deletion request.
func (m *MetricsService) RecordRequestCreated() {
	if m == nil {
		return
	}
	m.deletionCreated.Inc()
}

// RecordRequestConfirmed counts a subject-verified request.
func (m *MetricsService) RecordRequestConfirmed() {
	if m == nil {
		return
	}
	m.deletionConfirmed.Inc()
}

// RecordRedaction counts one redacted record for a record type.
func (m *MetricsService) RecordRedaction(recordType string) {
	if m == nil {
		return
	}
	m.recordsRedacted.WithLabelValues(recordType).Inc()
}

// RecordRequestsReaped counts rows removed by the stale-request sweep.
func (m *MetricsService) RecordRequestsReaped(count int64) {
	if m == nil {
		return
	}
	m.requestsReaped.Add(float64(count))
}
