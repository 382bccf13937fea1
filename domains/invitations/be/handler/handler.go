package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-projects/domains/invitations/be/service"
	"github.com/zenGate-Global/palmyra-projects/platform/go/httpjson"
	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	platformlogging "github.com/zenGate-Global/palmyra-projects/platform/go/logging"
	"github.com/zenGate-Global/palmyra-projects/platform/go/problem"
	"github.com/zenGate-Global/palmyra-projects/platform/go/session"
)

type operation string

const (
	createOperation  operation = "invitationsCreate"
	cancelOperation  operation = "invitationsCancel"
	resendOperation  operation = "invitationsResend"
	resolveOperation operation = "invitationsResolve"
	acceptOperation  operation = "invitationsAccept"
	resumeOperation  operation = "invitationsResumePending"
)

// Handler exposes the invitations service over HTTP.
type Handler struct {
	svc        service.Service
	sessionTTL time.Duration
	logger     *zap.Logger
}

// New constructs a Handler. sessionTTL bounds the cookie issued to anonymous invitees.
func New(svc service.Service, sessionTTL time.Duration, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("invitations service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, sessionTTL: sessionTTL, logger: logger}
}

// Routes mounts the invitation endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/projects/{projectId}/invitations", h.Create)
	r.Delete("/projects/{projectId}/invitations/{invitationId}", h.Cancel)
	r.Post("/projects/{projectId}/invitations/{invitationId}/resend", h.Resend)

	r.Post("/invitations/pending/accept", h.ResumePending)
	// Not side-effect free: when the caller is signed in as the invited
	// address the GET accepts the invitation, so responses are never cached
	// and link prefetchers that carry the user's token will accept it.
	r.Get("/invitations/{token}", h.Resolve)
	r.Post("/invitations/{token}/accept", h.Accept)
}

type invitationResponse struct {
	ID         uuid.UUID  `json:"id"`
	ProjectID  uuid.UUID  `json:"projectId"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	Status     string     `json:"status"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type resolutionResponse struct {
	Invitation         invitationResponse `json:"invitation"`
	ProjectName        string             `json:"projectName"`
	InviterName        string             `json:"inviterName"`
	HasExistingAccount bool               `json:"hasExistingAccount"`
	Accepted           bool               `json:"accepted"`
}

type acceptanceResponse struct {
	ProjectID uuid.UUID `json:"projectId"`
	Deferred  bool      `json:"deferred"`
	Next      string    `json:"next,omitempty"`
}

type createRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.uuidParam(w, r, createOperation, "projectId")
	if !ok {
		return
	}
	var body createRequest
	if err := httpjson.Decode(w, r, &body); err != nil {
		h.writeBadBody(w, r, createOperation, err)
		return
	}

	inv, err := h.svc.Create(r.Context(), principal(r.Context()), projectID, service.CreateInput{Email: body.Email, Role: body.Role})
	if err != nil {
		h.writeError(w, r, createOperation, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toInvitationResponse(inv))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.uuidParam(w, r, cancelOperation, "projectId")
	if !ok {
		return
	}
	invitationID, ok := h.uuidParam(w, r, cancelOperation, "invitationId")
	if !ok {
		return
	}

	if err := h.svc.Cancel(r.Context(), principal(r.Context()), projectID, invitationID); err != nil {
		h.writeError(w, r, cancelOperation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.uuidParam(w, r, resendOperation, "projectId")
	if !ok {
		return
	}
	invitationID, ok := h.uuidParam(w, r, resendOperation, "invitationId")
	if !ok {
		return
	}

	inv, err := h.svc.Resend(r.Context(), principal(r.Context()), projectID, invitationID)
	if err != nil {
		h.writeError(w, r, resendOperation, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toInvitationResponse(inv))
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	res, err := h.svc.Resolve(r.Context(), principal(r.Context()), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, resolveOperation, err)
		return
	}
	httpjson.Write(w, http.StatusOK, resolutionResponse{
		Invitation:         toInvitationResponse(res.Invitation),
		ProjectName:        res.ProjectName,
		InviterName:        res.InviterName,
		HasExistingAccount: res.HasExistingAccount,
		Accepted:           res.Accepted,
	})
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	p := principal(r.Context())

	var sessionID string
	if p.ID == uuid.Nil {
		id, err := session.EnsureID(w, r, h.sessionTTL)
		if err != nil {
			h.writeError(w, r, acceptOperation, err)
			return
		}
		sessionID = id
	}

	acceptance, err := h.svc.Accept(r.Context(), p, sessionID, chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, acceptOperation, err)
		return
	}

	status := http.StatusOK
	if acceptance.Deferred {
		status = http.StatusAccepted
	}
	httpjson.Write(w, status, acceptanceResponse{
		ProjectID: acceptance.ProjectID,
		Deferred:  acceptance.Deferred,
		Next:      string(acceptance.Next),
	})
}

func (h *Handler) ResumePending(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.ID(r)

	acceptance, err := h.svc.ResumePending(r.Context(), principal(r.Context()), sessionID)
	if err != nil {
		h.writeError(w, r, resumeOperation, err)
		return
	}
	httpjson.Write(w, http.StatusOK, acceptanceResponse{ProjectID: acceptance.ProjectID})
}

func principal(ctx context.Context) identity.Principal {
	p, _ := identity.FromContext(ctx)
	return p
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, op operation, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, r, op, service.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func toInvitationResponse(inv service.Invitation) invitationResponse {
	return invitationResponse{
		ID:         inv.ID,
		ProjectID:  inv.ProjectID,
		Email:      inv.Email,
		Role:       inv.Role,
		Status:     string(inv.State),
		ExpiresAt:  inv.ExpiresAt,
		AcceptedAt: inv.AcceptedAt,
		CreatedAt:  inv.CreatedAt,
	}
}

func (h *Handler) writeBadBody(w http.ResponseWriter, r *http.Request, op operation, err error) {
	h.loggerFrom(r.Context()).Warn("invitations request body rejected", zap.String("operation", string(op)), zap.Error(err))
	problem.Write(w, r, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op operation, err error) {
	status, title, detail, fields := classifyError(err)

	logger := h.loggerFrom(r.Context())
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
		zap.Error(err),
	}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("invitations operation failed", fieldsForLog...)
	case status == http.StatusNotFound, status == http.StatusGone:
		logger.Info("invitation unavailable", fieldsForLog...)
	default:
		logger.Warn("invitations request rejected", fieldsForLog...)
	}

	problem.Write(w, r, status, title, detail, fields)
}

func classifyError(err error) (status int, title, detail string, fields service.FieldErrors) {
	var (
		validationErr *service.ValidationError
		conflictErr   *service.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", validationErr.Fields
	case errors.As(err, &conflictErr):
		return http.StatusConflict, "Conflict", "one or more fields conflict with existing data", conflictErr.Fields
	case errors.Is(err, service.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "Unauthorized", "authentication is required", nil
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Forbidden", "you are not allowed to manage invitations for this project", nil
	case errors.Is(err, service.ErrInvitationExpired):
		return http.StatusGone, "Invitation expired", "This invitation has expired.", nil
	case errors.Is(err, service.ErrInvitationInvalid):
		return http.StatusNotFound, "Invitation not found", "This invitation link is invalid.", nil
	case errors.Is(err, service.ErrNoPendingInvitation):
		return http.StatusNotFound, "No pending invitation", "there is no invitation waiting for this session", nil
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Invitation not found", "This invitation is invalid or has expired.", nil
	default:
		return http.StatusInternalServerError, "Internal server error", "an unexpected error occurred", nil
	}
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
