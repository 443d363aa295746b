package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	eventsTotal      *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
	filteredTotal    *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	publishFailures  prometheus.Counter
	lowStockEnqueued prometheus.Counter
}

// NewMetrics initialises the registry with HTTP and domain collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agri_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agri_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agri_notification_events_total",
		Help: "Notification events persisted by category.",
	}, []string{"category"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agri_notification_deliveries_total",
		Help: "Notification deliveries persisted by recipient type.",
	}, []string{"recipient_type"})
	filtered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agri_notification_filtered_total",
		Help: "Company recipients dropped because the plan disables the category.",
	}, []string{"category"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agri_adjustment_decisions_total",
		Help: "Adjustment request decisions by decision and outcome.",
	}, []string{"decision", "outcome"})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agri_realtime_publish_failures_total",
		Help: "Realtime notices that could not be published.",
	})
	lowStock := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "agri_inventory_low_stock_enqueued_total",
		Help: "Low stock alert tasks enqueued after approvals.",
	})
	registry.MustRegister(requests, duration, events, deliveries, filtered, decisions, publishFailures, lowStock)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		eventsTotal:      events,
		deliveriesTotal:  deliveries,
		filteredTotal:    filtered,
		decisionsTotal:   decisions,
		publishFailures:  publishFailures,
		lowStockEnqueued: lowStock,
	}
}

// Handler returns the http.Handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for each HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// EventCreated counts a persisted event and its deliveries.
func (m *Metrics) EventCreated(category string, recipientTypes []string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(category).Inc()
	for _, rt := range recipientTypes {
		m.deliveriesTotal.WithLabelValues(rt).Inc()
	}
}

// RecipientFiltered counts a company recipient removed by plan gating.
func (m *Metrics) RecipientFiltered(category string) {
	if m == nil {
		return
	}
	m.filteredTotal.WithLabelValues(category).Inc()
}

// AdjustmentDecision counts approve/reject attempts. outcome is "ok" or an error class.
func (m *Metrics) AdjustmentDecision(decision, outcome string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(decision, outcome).Inc()
}

// PublishFailed counts a dropped realtime notice.
func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

// LowStockEnqueued counts an enqueued low stock alert.
func (m *Metrics) LowStockEnqueued() {
	if m == nil {
		return
	}
	m.lowStockEnqueued.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
