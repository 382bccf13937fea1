package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics
// records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthorizationDecisions *prometheus.CounterVec
	InvitationEvents       *prometheus.CounterVec
	MailDispatch           *prometheus.CounterVec
}

// New creates the collectors and registers them on registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "palmyra_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "palmyra_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthorizationDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "palmyra_authorization_decisions_total",
				Help: "Authorization decisions by action, resource type and outcome",
			},
			[]string{"action", "resource", "outcome"},
		),
		InvitationEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "palmyra_invitations_total",
				Help: "Invitation lifecycle events",
			},
			[]string{"event"},
		),
		MailDispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "palmyra_mail_dispatch_total",
				Help: "Invitation mail enqueue and delivery outcomes",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthorizationDecisions,
		m.InvitationEvents,
		m.MailDispatch,
	)

	return m
}

// RecordDecision implements rbac.DecisionRecorder.
func (m *Metrics) RecordDecision(action, resource, outcome string) {
	if m == nil {
		return
	}
	m.AuthorizationDecisions.WithLabelValues(action, resource, outcome).Inc()
}

// RecordInvitation counts an invitation lifecycle event.
func (m *Metrics) RecordInvitation(event string) {
	if m == nil {
		return
	}
	m.InvitationEvents.WithLabelValues(event).Inc()
}

// RecordMail counts a mail dispatch outcome.
func (m *Metrics) RecordMail(outcome string) {
	if m == nil {
		return
	}
	m.MailDispatch.WithLabelValues(outcome).Inc()
}

// HTTPMiddleware records request counts and latency labelled by the chi
// route pattern so path parameters do not explode cardinality.
func HTTPMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
