package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	"github.com/zenGate-Global/palmyra-projects/platform/go/tenant"
)

func TestWithActiveProject(t *testing.T) {
	t.Parallel()

	var (
		got   uuid.UUID
		found bool
	)
	handler := WithActiveProject(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = tenant.ActiveProject(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, found)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(identity.WithPrincipal(req.Context(), identity.Principal{ID: uuid.New()}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.False(t, found)

	projectID := uuid.New()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(identity.WithPrincipal(req.Context(), identity.Principal{ID: uuid.New(), CurrentProjectID: &projectID}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, found)
	require.Equal(t, projectID, got)
}
