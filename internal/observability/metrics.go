package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/resguarit/pos-system-sub005/internal/jobs"
)

// Metrics collects the Prometheus metrics of the settlement service. It
// implements the recorder ports of the numbering, ledger and fiscal packages.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	numberingRetries   *prometheus.CounterVec
	numberingExhausted *prometheus.CounterVec
	ledgerMovements    *prometheus.CounterVec
	ledgerSkipped      *prometheus.CounterVec
	ledgerReversed     *prometheus.CounterVec
	fiscalResults      *prometheus.CounterVec

	jobs *jobmetrics.Metrics
}

// NewMetrics initialises the registry and every collector.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_numbering_retries_total",
		Help: "Receipt number collisions that forced a retry.",
	}, []string{"scope"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_numbering_exhausted_total",
		Help: "Documents rejected after every numbering attempt collided.",
	}, []string{"scope"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ledger_movements_total",
		Help: "Ledger movements written by kind and book.",
	}, []string{"kind", "book"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ledger_skipped_total",
		Help: "Ledger movements skipped because they were already posted.",
	}, []string{"kind"})
	reversed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_ledger_reversed_total",
		Help: "Ledger movements flagged as annulled.",
	}, []string{"book"})
	fiscal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_fiscal_authorizations_total",
		Help: "Fiscal authorization attempts by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, retries, exhausted, movements, skipped, reversed, fiscal)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		numberingRetries:   retries,
		numberingExhausted: exhausted,
		ledgerMovements:    movements,
		ledgerSkipped:      skipped,
		ledgerReversed:     reversed,
		fiscalResults:      fiscal,
		jobs:               jobmetrics.NewMetrics(registry),
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

// Middleware records metrics for every HTTP request.
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

// Jobs returns the background job metrics registered on the same registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

func (m *Metrics) NumberingRetry(scope string) {
	if m != nil {
		m.numberingRetries.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) NumberingExhausted(scope string) {
	if m != nil {
		m.numberingExhausted.WithLabelValues(scope).Inc()
	}
}

func (m *Metrics) LedgerMovement(kind string, book string) {
	if m != nil {
		m.ledgerMovements.WithLabelValues(kind, book).Inc()
	}
}

func (m *Metrics) LedgerSkipped(kind string) {
	if m != nil {
		m.ledgerSkipped.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) LedgerReversed(book string) {
	if m != nil {
		m.ledgerReversed.WithLabelValues(book).Inc()
	}
}

func (m *Metrics) FiscalAuthorization(result string) {
	if m != nil {
		m.fiscalResults.WithLabelValues(result).Inc()
	}
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
