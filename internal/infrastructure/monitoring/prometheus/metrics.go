// Package prometheus exposes the gateway's operational metrics.  Everything
// registers on a private registry so tests can create isolated instances
// and the /metrics handler serves exactly what the gateway owns.
package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds every gateway metric.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	GuardDenials     *prometheus.CounterVec
	RateLimitDenials *prometheus.CounterVec
	BotVerdicts      *prometheus.CounterVec
	SecurityEvents   *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
	BreakerRejects   *prometheus.CounterVec
	SinkFailures     *prometheus.CounterVec
}

// New registers the gateway metrics under the given namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status code.",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   defaultDurationBuckets,
		}, []string{"method", "path"}),
		GuardDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_denials_total",
			Help:      "Requests rejected by resource-ceiling checks.",
		}, []string{"check"}),
		RateLimitDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_denials_total",
			Help:      "Requests denied by the rate limiter, by tier.",
		}, []string{"tier"}),
		BotVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_verdicts_total",
			Help:      "Bot-detector verdicts on analyzed submissions.",
		}, []string{"verdict"}),
		SecurityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events by type and severity.",
		}, []string{"event_type", "severity"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"service"}),
		BreakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_rejections_total",
			Help:      "Calls rejected while a breaker was open.",
		}, []string{"service"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_sink_failures_total",
			Help:      "Security-event deliveries that failed, by sink.",
		}, []string{"sink"}),
	}

	registry.MustRegister(
		m.RequestsTotal, m.RequestDuration, m.GuardDenials,
		m.RateLimitDenials, m.BotVerdicts, m.SecurityEvents,
		m.BreakerState, m.BreakerRejects, m.SinkFailures,
	)
	return m
}

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry exposes the private registry for custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveBotVerdict records the outcome of one bot analysis.
func (m *Metrics) ObserveBotVerdict(isBot, shouldBlock bool) {
	switch {
	case shouldBlock:
		m.BotVerdicts.WithLabelValues("blocked").Inc()
	case isBot:
		m.BotVerdicts.WithLabelValues("suspect").Inc()
	default:
		m.BotVerdicts.WithLabelValues("clean").Inc()
	}
}

// SetBreakerState maps a breaker state string onto the gauge.
func (m *Metrics) SetBreakerState(service, state string) {
	var v float64
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	m.BreakerState.WithLabelValues(service).Set(v)
}
