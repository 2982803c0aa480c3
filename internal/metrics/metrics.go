// Package metrics exposes docgate's Prometheus metrics. A nil *Metrics is
// valid and records nothing, so components can be built without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gate decision labels
const (
	DecisionPlaceholder = "placeholder"
	DecisionRedirect    = "redirect"
	DecisionRender      = "render"
	DecisionPublic      = "public"
)

// Verification outcome labels
const (
	VerifySuccess  = "success"
	VerifyCached   = "cached"
	VerifyRejected = "rejected"
	VerifyError    = "error"
)

// Login result labels
const (
	LoginSuccess = "success"
	LoginDirect  = "direct"
	LoginFailed  = "failed"
	LoginDenied  = "denied"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	GateDecisionsTotal   *prometheus.CounterVec
	VerificationsTotal   *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	LoginsTotal          *prometheus.CounterVec
	LogoutsTotal         prometheus.Counter
	MemberUpsertFailures prometheus.Counter
}

// New creates and registers all metrics on a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_gate_decisions_total",
				Help: "Auth gate decisions by outcome",
			},
			[]string{"decision"},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_verifications_total",
				Help: "Session verifications against the SSO proxy by outcome",
			},
			[]string{"outcome"},
		),
		VerificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docgate_verification_duration_seconds",
				Help:    "Duration of verification calls to the SSO proxy",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_logins_total",
				Help: "Login callbacks by result",
			},
			[]string{"result"},
		),
		LogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docgate_logouts_total",
				Help: "Total number of logouts",
			},
		),
		MemberUpsertFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docgate_member_upsert_failures_total",
				Help: "Failed attempts to record a member login",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GateDecisionsTotal,
		m.VerificationsTotal,
		m.VerificationDuration,
		m.LoginsTotal,
		m.LogoutsTotal,
		m.MemberUpsertFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// GateDecision records one auth gate outcome
func (m *Metrics) GateDecision(decision string) {
	if m == nil {
		return
	}
	m.GateDecisionsTotal.WithLabelValues(decision).Inc()
}

// Verification records the outcome of one verification. d is zero for
// answers served from cache.
func (m *Metrics) Verification(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.VerificationDuration.Observe(d.Seconds())
	}
}

// Login records a login callback result
func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// Logout records a logout
func (m *Metrics) Logout() {
	if m == nil {
		return
	}
	m.LogoutsTotal.Inc()
}

// MemberUpsertFailed records a failed member write
func (m *Metrics) MemberUpsertFailed() {
	if m == nil {
		return
	}
	m.MemberUpsertFailures.Inc()
}
