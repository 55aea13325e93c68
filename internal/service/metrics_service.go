package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the commitment lifecycle.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	slaBreachTotal  prometheus.Counter
	receiptTotal    prometheus.Counter
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

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "commitment_transitions_total",
		Help: "Commitment lifecycle transitions by target status",
	}, []string{"to"})

	slaBreachTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "question_sla_breaches_total",
		Help: "Questions marked as having breached their answer SLA",
	})

	receiptTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "receipts_generated_total",
		Help: "Acknowledgment receipts rendered for approved commitments",
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, slaBreachTotal, receiptTotal)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		transitionTotal: transitionTotal,
		slaBreachTotal:  slaBreachTotal,
		receiptTotal:    receiptTotal,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveRequest records one HTTP request.
func (m *MetricsService) ObserveRequest(method, path, status string, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveTransition records one commitment lifecycle transition.
func (m *MetricsService) ObserveTransition(to string) {
	m.transitionTotal.WithLabelValues(to).Inc()
}

// ObserveSLABreaches records newly marked SLA breaches.
func (m *MetricsService) ObserveSLABreaches(count int64) {
	for i := int64(0); i < count; i++ {
		m.slaBreachTotal.Inc()
	}
}

// ObserveReceipt records one rendered receipt.
func (m *MetricsService) ObserveReceipt() {
	m.receiptTotal.Inc()
}
