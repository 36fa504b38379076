package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the gateway.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	lifecycleTotal  *prometheus.CounterVec
	bulkItemsTotal  *prometheus.CounterVec
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

	lifecycleTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_lifecycle_operations_total",
		Help: "Total document lifecycle operations by action and outcome",
	}, []string{"action", "outcome"})

	bulkItemsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "document_bulk_items_total",
		Help: "Per-item outcomes of bulk lifecycle operations",
	}, []string{"operation", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, lifecycleTotal, bulkItemsTotal, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		lifecycleTotal:  lifecycleTotal,
		bulkItemsTotal:  bulkItemsTotal,
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
	statusLabel := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, statusLabel).Inc()
}

// ObserveLifecycleOperation counts a lifecycle transition attempt.
func (m *MetricsService) ObserveLifecycleOperation(action, outcome string) {
	if m == nil {
		return
	}
	m.lifecycleTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveBulkItems counts per-item outcomes of a bulk operation.
func (m *MetricsService) ObserveBulkItems(operation string, succeeded, skipped, failed int) {
	if m == nil {
		return
	}
	m.bulkItemsTotal.WithLabelValues(operation, "succeeded").Add(float64(succeeded))
	m.bulkItemsTotal.WithLabelValues(operation, "skipped").Add(float64(skipped))
	m.bulkItemsTotal.WithLabelValues(operation, "failed").Add(float64(failed))
}
