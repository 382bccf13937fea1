package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-projects/domains/invitations/be/service"
	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	"github.com/zenGate-Global/palmyra-projects/platform/go/problem"
	"github.com/zenGate-Global/palmyra-projects/platform/go/session"
)

type mockService struct {
	createFn  func(ctx context.Context, p identity.Principal, projectID uuid.UUID, input service.CreateInput) (service.Invitation, error)
	resolveFn func(ctx context.Context, p identity.Principal, token string) (service.Resolution, error)
	acceptFn  func(ctx context.Context, p identity.Principal, sessionID, token string) (service.Acceptance, error)
	resumeFn  func(ctx context.Context, p identity.Principal, sessionID string) (service.Acceptance, error)
	cancelFn  func(ctx context.Context, p identity.Principal, projectID, invitationID uuid.UUID) error
	resendFn  func(ctx context.Context, p identity.Principal, projectID, invitationID uuid.UUID) (service.Invitation, error)
}

func (m *mockService) Create(ctx context.Context, p identity.Principal, projectID uuid.UUID, input service.CreateInput) (service.Invitation, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, p, projectID, input)
}

func (m *mockService) Resolve(ctx context.Context, p identity.Principal, token string) (service.Resolution, error) {
	if m.resolveFn == nil {
		panic("resolveFn not configured")
	}
	return m.resolveFn(ctx, p, token)
}

func (m *mockService) Accept(ctx context.Context, p identity.Principal, sessionID, token string) (service.Acceptance, error) {
	if m.acceptFn == nil {
		panic("acceptFn not configured")
	}
	return m.acceptFn(ctx, p, sessionID, token)
}

func (m *mockService) ResumePending(ctx context.Context, p identity.Principal, sessionID string) (service.Acceptance, error) {
	if m.resumeFn == nil {
		panic("resumeFn not configured")
	}
	return m.resumeFn(ctx, p, sessionID)
}

func (m *mockService) Cancel(ctx context.Context, p identity.Principal, projectID, invitationID uuid.UUID) error {
	if m.cancelFn == nil {
		panic("cancelFn not configured")
	}
	return m.cancelFn(ctx, p, projectID, invitationID)
}

func (m *mockService) Resend(ctx context.Context, p identity.Principal, projectID, invitationID uuid.UUID) (service.Invitation, error) {
	if m.resendFn == nil {
		panic("resendFn not configured")
	}
	return m.resendFn(ctx, p, projectID, invitationID)
}

func newRequest(method, target, body string, p *identity.Principal) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if p != nil {
		req = req.WithContext(identity.WithPrincipal(req.Context(), *p))
	}
	return req
}

func serve(t *testing.T, svc service.Service, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	New(svc, time.Hour, zaptest.NewLogger(t)).Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem.Details {
	t.Helper()
	require.Equal(t, problem.ContentType, rec.Header().Get("Content-Type"))
	var d problem.Details
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	return d
}

func TestCreateInvitation(t *testing.T) {
	t.Parallel()

	owner := identity.Principal{ID: uuid.New()}
	projectID := uuid.New()
	svc := &mockService{createFn: func(_ context.Context, p identity.Principal, id uuid.UUID, input service.CreateInput) (service.Invitation, error) {
		require.Equal(t, owner.ID, p.ID)
		require.Equal(t, projectID, id)
		require.Equal(t, service.CreateInput{Email: "bob@example.com", Role: "Editor"}, input)
		return service.Invitation{ID: uuid.New(), ProjectID: id, Email: input.Email, Role: input.Role, State: service.StatePending}, nil
	}}

	rec := serve(t, svc, newRequest(http.MethodPost, "/projects/"+projectID.String()+"/invitations", `{"email":"bob@example.com","role":"Editor"}`, &owner))
	require.Equal(t, http.StatusCreated, rec.Code)

	var got invitationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "pending", got.Status)
	require.NotContains(t, rec.Body.String(), "token")
}

func TestCreateInvitationConflict(t *testing.T) {
	t.Parallel()

	svc := &mockService{createFn: func(context.Context, identity.Principal, uuid.UUID, service.CreateInput) (service.Invitation, error) {
		return service.Invitation{}, &service.ConflictError{Fields: service.FieldErrors{"email": {"This user is already a member of the project."}}}
	}}

	rec := serve(t, svc, newRequest(http.MethodPost, "/projects/"+uuid.NewString()+"/invitations", `{"email":"bob@example.com","role":"Viewer"}`, &identity.Principal{ID: uuid.New()}))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, []string{"This user is already a member of the project."}, decodeProblem(t, rec).Errors["email"])
}

func TestCreateInvitationRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	rec := serve(t, &mockService{}, newRequest(http.MethodPost, "/projects/"+uuid.NewString()+"/invitations", `{"email":"a@b.c","token":"x"}`, &identity.Principal{ID: uuid.New()}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAndResend(t *testing.T) {
	t.Parallel()

	projectID, invitationID := uuid.New(), uuid.New()
	svc := &mockService{
		cancelFn: func(_ context.Context, _ identity.Principal, pid, iid uuid.UUID) error {
			require.Equal(t, projectID, pid)
			require.Equal(t, invitationID, iid)
			return nil
		},
		resendFn: func(context.Context, identity.Principal, uuid.UUID, uuid.UUID) (service.Invitation, error) {
			return service.Invitation{}, service.ErrForbidden
		},
	}
	base := "/projects/" + projectID.String() + "/invitations/" + invitationID.String()
	user := &identity.Principal{ID: uuid.New()}

	rec := serve(t, svc, newRequest(http.MethodDelete, base, "", user))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, svc, newRequest(http.MethodPost, base+"/resend", "", user))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, svc, newRequest(http.MethodDelete, "/projects/"+projectID.String()+"/invitations/nope", "", user))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveStates(t *testing.T) {
	t.Parallel()

	svc := &mockService{resolveFn: func(_ context.Context, _ identity.Principal, token string) (service.Resolution, error) {
		switch token {
		case "expired":
			return service.Resolution{}, service.ErrInvitationExpired
		case "invalid":
			return service.Resolution{}, service.ErrInvitationInvalid
		}
		return service.Resolution{
			Invitation:         service.Invitation{Email: "bob@example.com", Role: "Viewer", State: service.StatePending},
			ProjectName:        "Apollo",
			InviterName:        "Ada",
			HasExistingAccount: true,
		}, nil
	}}

	rec := serve(t, svc, newRequest(http.MethodGet, "/invitations/expired", "", nil))
	require.Equal(t, http.StatusGone, rec.Code)
	require.Equal(t, problem.TypeGone, decodeProblem(t, rec).Type)

	rec = serve(t, svc, newRequest(http.MethodGet, "/invitations/invalid", "", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, svc, newRequest(http.MethodGet, "/invitations/good", "", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var got resolutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Apollo", got.ProjectName)
	require.True(t, got.HasExistingAccount)
	require.False(t, got.Accepted)
}

func TestAcceptAnonymousIssuesSession(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()
	svc := &mockService{acceptFn: func(_ context.Context, p identity.Principal, sessionID, token string) (service.Acceptance, error) {
		require.Equal(t, uuid.Nil, p.ID)
		require.NotEmpty(t, sessionID)
		require.Equal(t, "tok", token)
		return service.Acceptance{ProjectID: projectID, Deferred: true, Next: service.NextRegister}, nil
	}}

	rec := serve(t, svc, newRequest(http.MethodPost, "/invitations/tok/accept", "", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var got acceptanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.Deferred)
	require.Equal(t, "register", got.Next)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, session.CookieName, cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)
}

func TestAcceptAuthenticated(t *testing.T) {
	t.Parallel()

	user := identity.Principal{ID: uuid.New()}
	svc := &mockService{acceptFn: func(_ context.Context, p identity.Principal, sessionID, _ string) (service.Acceptance, error) {
		require.Equal(t, user.ID, p.ID)
		require.Empty(t, sessionID)
		return service.Acceptance{ProjectID: uuid.New()}, nil
	}}

	rec := serve(t, svc, newRequest(http.MethodPost, "/invitations/tok/accept", "", &user))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Result().Cookies())

	svc.acceptFn = func(context.Context, identity.Principal, string, string) (service.Acceptance, error) {
		return service.Acceptance{}, service.ErrNotFound
	}
	rec = serve(t, svc, newRequest(http.MethodPost, "/invitations/tok/accept", "", &user))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "This invitation is invalid or has expired.", decodeProblem(t, rec).Detail)
}

func TestResumePendingUsesSessionCookie(t *testing.T) {
	t.Parallel()

	user := identity.Principal{ID: uuid.New()}
	svc := &mockService{resumeFn: func(_ context.Context, _ identity.Principal, sessionID string) (service.Acceptance, error) {
		if sessionID != "session-1" {
			return service.Acceptance{}, service.ErrNoPendingInvitation
		}
		return service.Acceptance{ProjectID: uuid.New()}, nil
	}}

	req := newRequest(http.MethodPost, "/invitations/pending/accept", "", &user)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "session-1"})
	rec := serve(t, svc, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, svc, newRequest(http.MethodPost, "/invitations/pending/accept", "", &user))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
