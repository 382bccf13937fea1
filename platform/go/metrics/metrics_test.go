package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.RecordDecision("delete", "project", "deny")
	m.RecordDecision("delete", "project", "deny")
	m.RecordInvitation("created")
	m.RecordMail("enqueued")

	require.InDelta(t, 2, testutil.ToFloat64(m.AuthorizationDecisions.WithLabelValues("delete", "project", "deny")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.InvitationEvents.WithLabelValues("created")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.MailDispatch.WithLabelValues("enqueued")), 0)

	var nilMetrics *Metrics
	nilMetrics.RecordDecision("view", "project", "allow")
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m := New(registry)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(m))
	r.Get("/projects/{projectId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", Handler(registry))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/projects/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/projects/def", nil))

	require.InDelta(t, 2, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/projects/{projectId}", "418")), 0)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "palmyra_http_requests_total"))
}
