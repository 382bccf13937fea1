package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-projects/contracts"
	platformauth "github.com/zenGate-Global/palmyra-projects/platform/go/auth"
	"github.com/zenGate-Global/palmyra-projects/platform/go/problem"
)

func validatedRouter(t *testing.T, creds *platformauth.Credentials) http.Handler {
	t.Helper()

	spec, err := contracts.Load(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if creds != nil {
				req = req.WithContext(platformauth.WithCredentials(req.Context(), creds))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Use(RequestValidator(spec))

	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	r.Post("/api/v1/projects", ok)
	r.Get("/api/v1/invitations/{token}", ok)
	return r
}

func TestRequestValidatorRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	h := validatedRouter(t, &platformauth.Credentials{Subject: "sub-1"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(`{"name":"Apollo","color":"red"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, problem.ContentType, resp.Header().Get("Content-Type"))

	var body problem.Details
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, problem.TypeValidation, body.Type)
	require.NotEmpty(t, body.Detail)
}

func TestRequestValidatorAcceptsValidBody(t *testing.T) {
	t.Parallel()

	h := validatedRouter(t, &platformauth.Credentials{Subject: "sub-1"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(`{"name":"Apollo"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestRequestValidatorRequiresCredentials(t *testing.T) {
	t.Parallel()

	h := validatedRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", strings.NewReader(`{"name":"Apollo"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, problem.ContentType, resp.Header().Get("Content-Type"))
}

func TestRequestValidatorAllowsAnonymousInvitationLookup(t *testing.T) {
	t.Parallel()

	h := validatedRouter(t, nil)

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/invitations/abc123", nil))

	require.Equal(t, http.StatusOK, resp.Code)
}
