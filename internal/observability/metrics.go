package observability

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Console HTTP request rate by route template and status class.
	HTTPRequestsTotal *prometheus.CounterVec

	// Console HTTP latency. Submissions include the backend round trip.
	HTTPRequestDuration *prometheus.HistogramVec

	// Console requests currently being served.
	HTTPRequestsInFlight prometheus.Gauge

	// Backend calls by endpoint (weather, history, count) and outcome.
	BackendCallsTotal *prometheus.CounterVec

	// Backend latency per call. Watch for: p99 near backend.timeout.
	BackendDuration *prometheus.HistogramVec

	// Backend failures by category. Categories are for operators only; the views show one message.
	BackendErrorsTotal *prometheus.CounterVec

	// Orchestrator state transitions by request name and entered state.
	OrchestratorTransitionsTotal *prometheus.CounterVec

	// Submissions refused locally: reason=validation (bad coordinates) or in_flight (control disabled).
	SubmissionsRejectedTotal *prometheus.CounterVec

	// Rate limit denials on /views.
	RateLimitDeniedTotal prometheus.Counter

	loadingGaugesMu   sync.Mutex
	loadingGaugeNames = map[string]struct{}{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of console HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Console HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of console HTTP requests currently being served",
		},
	)
	BackendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendCallsTotal",
			Help: "Total number of weather backend calls",
		},
		[]string{"endpoint", "status"},
	)
	BackendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backendDurationSeconds",
			Help:    "Weather backend latency in seconds (per call)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	BackendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backendErrorsTotal",
			Help: "Weather backend failures by category",
		},
		[]string{"endpoint", "category"},
	)
	OrchestratorTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestratorTransitionsTotal",
			Help: "Request orchestrator state transitions",
		},
		[]string{"request", "state"},
	)
	SubmissionsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissionsRejectedTotal",
			Help: "Submissions refused without a backend call",
		},
		[]string{"request", "reason"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of console requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		BackendCallsTotal, BackendDuration, BackendErrorsTotal,
		OrchestratorTransitionsTotal, SubmissionsRejectedTotal,
		RateLimitDeniedTotal,
	)
}

// RecordBackendCall counts one backend call and observes its latency.
func RecordBackendCall(endpoint, status string, d time.Duration) {
	BackendCallsTotal.WithLabelValues(endpoint, status).Inc()
	BackendDuration.WithLabelValues(endpoint, status).Observe(d.Seconds())
}

// RecordBackendError counts a categorized backend failure.
func RecordBackendError(endpoint, category string) {
	BackendErrorsTotal.WithLabelValues(endpoint, category).Inc()
}

// RecordTransition counts an orchestrator entering state.
func RecordTransition(request, state string) {
	OrchestratorTransitionsTotal.WithLabelValues(request, state).Inc()
}

// RecordRejected counts a submission refused before reaching the backend.
func RecordRejected(request, reason string) {
	SubmissionsRejectedTotal.WithLabelValues(request, reason).Inc()
}

// RegisterLoadingGauges exposes a 0/1 gauge per view reporting whether a call is in flight.
// Names already registered are skipped, so repeated calls are safe.
func RegisterLoadingGauges(loading map[string]func() bool) {
	loadingGaugesMu.Lock()
	defer loadingGaugesMu.Unlock()

	names := make([]string, 0, len(loading))
	for name := range loading {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := loadingGaugeNames[name]; ok {
			continue
		}
		fn := loading[name]
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "viewLoading",
				Help:        "1 while the view has a backend call in flight",
				ConstLabels: prometheus.Labels{"view": name},
			},
			func() float64 {
				if fn() {
					return 1
				}
				return 0
			},
		))
		loadingGaugeNames[name] = struct{}{}
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
