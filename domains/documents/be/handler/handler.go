package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-projects/domains/documents/be/service"
	"github.com/zenGate-Global/palmyra-projects/platform/go/httpjson"
	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	platformlogging "github.com/zenGate-Global/palmyra-projects/platform/go/logging"
	"github.com/zenGate-Global/palmyra-projects/platform/go/problem"
	"github.com/zenGate-Global/palmyra-projects/platform/go/tenant"
)

// Handler exposes the documents service over HTTP. The scope of every call
// comes from the principal and active project on the request.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("documents service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the document endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{documentId}", h.Get)
		r.Patch("/{documentId}", h.Update)
		r.Delete("/{documentId}", h.Delete)
	})
}

type documentResponse struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"projectId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedBy uuid.UUID `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type listResponse struct {
	Items      []documentResponse `json:"items"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
	TotalItems int                `json:"totalItems"`
}

type createRequest struct {
	ProjectID *uuid.UUID `json:"projectId,omitempty"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
}

type updateRequest struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, scope, ok := h.caller(w, r)
	if !ok {
		return
	}

	opts := service.ListOptions{}
	for name, dst := range map[string]*int{"page": &opts.Page, "pageSize": &opts.PageSize} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, &service.ValidationError{Fields: service.FieldErrors{name: {name + " must be an integer"}}})
			return
		}
		*dst = n
	}

	result, err := h.svc.List(r.Context(), p, scope, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]documentResponse, 0, len(result.Documents))
	for _, doc := range result.Documents {
		items = append(items, documentResponse(doc))
	}
	httpjson.Write(w, http.StatusOK, listResponse{Items: items, Page: result.Page, PageSize: result.PageSize, TotalItems: result.TotalItems})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body createRequest
	if err := httpjson.Decode(w, r, &body); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
		return
	}

	doc, err := h.svc.Create(r.Context(), p, scope, service.CreateInput{ProjectID: body.ProjectID, Title: body.Title, Body: body.Body})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/documents/"+doc.ID.String())
	httpjson.Write(w, http.StatusCreated, documentResponse(doc))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.Get(r.Context(), p, scope, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, documentResponse(doc))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var body updateRequest
	if err := httpjson.Decode(w, r, &body); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
		return
	}

	doc, err := h.svc.Update(r.Context(), p, scope, id, service.UpdateInput{Title: body.Title, Body: body.Body})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, documentResponse(doc))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, scope, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), p, scope, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// caller returns the authenticated principal and the scope for the request.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (identity.Principal, tenant.Scope, bool) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		h.writeError(w, r, service.ErrAuthenticationRequired)
		return identity.Principal{}, tenant.Scope{}, false
	}
	scope, err := tenant.ResolveScope(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return identity.Principal{}, tenant.Scope{}, false
	}
	return p, scope, true
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "documentId"))
	if err != nil {
		h.writeError(w, r, service.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title, detail, fields := classifyError(err)

	logger := h.loggerFrom(r.Context())
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("documents operation failed", zap.Int("status", status), zap.Error(err))
	case status == http.StatusNotFound:
		logger.Info("document not found", zap.Error(err))
	default:
		logger.Warn("documents request rejected", zap.Int("status", status), zap.Error(err))
	}

	problem.Write(w, r, status, title, detail, fields)
}

func classifyError(err error) (status int, title, detail string, fields service.FieldErrors) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", validationErr.Fields
	case errors.Is(err, service.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "Unauthorized", "authentication is required", nil
	case errors.Is(err, tenant.ErrNoActiveProject):
		return http.StatusConflict, "No active project", "switch to a project before working with its documents", nil
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Forbidden", "you are not allowed to perform this action", nil
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Resource not found", "document not found", nil
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
