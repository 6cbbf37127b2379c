package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/odyssey-erp/purchasing/internal/jobs"
)

// Metrics collects the Prometheus metrics of the purchasing service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	quotes          *prometheus.CounterVec
	warnings        prometheus.Counter
	submissions     *prometheus.CounterVec
	schedules       *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, domain and job metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchasing_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "purchasing_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchasing_quotes_total",
		Help: "Drafts repriced, by GST classification.",
	}, []string{"classification"})
	warnings := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "purchasing_pricing_warnings_total",
		Help: "Warnings raised while repricing drafts (e.g. tax rate reset after a state change).",
	})
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchasing_order_submissions_total",
		Help: "Purchase order submissions by operation and outcome.",
	}, []string{"operation", "outcome"})
	schedules := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "purchasing_emi_schedules_total",
		Help: "EMI schedules planned, by frequency.",
	}, []string{"frequency"})
	registry.MustRegister(
		requests, duration, quotes, warnings, submissions, schedules,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		quotes:          quotes,
		warnings:        warnings,
		submissions:     submissions,
		schedules:       schedules,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
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

// ObserveQuote counts a repriced draft and the warnings it produced.
func (m *Metrics) ObserveQuote(classification string, warnings int) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(classification).Inc()
	if warnings > 0 {
		m.warnings.Add(float64(warnings))
	}
}

// ObserveSubmission counts a create/update attempt. outcome is "ok", "duplicate", "invalid" or "error".
func (m *Metrics) ObserveSubmission(operation, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(operation, outcome).Inc()
}

// ObserveSchedule counts a planned EMI schedule.
func (m *Metrics) ObserveSchedule(frequency string) {
	if m == nil {
		return
	}
	m.schedules.WithLabelValues(frequency).Inc()
}

// Jobs returns the background job collectors registered on the same registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
