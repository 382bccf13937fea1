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

	"github.com/zenGate-Global/palmyra-projects/domains/projects/be/service"
	"github.com/zenGate-Global/palmyra-projects/platform/go/httpjson"
	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	platformlogging "github.com/zenGate-Global/palmyra-projects/platform/go/logging"
	"github.com/zenGate-Global/palmyra-projects/platform/go/problem"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
)

type operation string

const (
	listOperation       operation = "projectsList"
	createOperation     operation = "projectsCreate"
	getOperation        operation = "projectsGet"
	updateOperation     operation = "projectsUpdate"
	deleteOperation     operation = "projectsDelete"
	switchOperation     operation = "projectsSwitch"
	navigationOperation operation = "me"
)

// Handler exposes the projects service over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("projects service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the project endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/me", h.Navigation)
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/switch", h.Switch)
		r.Get("/{projectId}", h.Get)
		r.Patch("/{projectId}", h.Update)
		r.Delete("/{projectId}", h.Delete)
	})
}

type projectResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	OwnerID     uuid.UUID `json:"ownerId"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type listResponse struct {
	Items      []projectResponse `json:"items"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalItems int               `json:"totalItems"`
	TotalPages int               `json:"totalPages"`
}

type memberResponse struct {
	UserID   uuid.UUID `json:"userId"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
	Roles    []string  `json:"roles"`
}

type pendingInvitationResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type detailsResponse struct {
	projectResponse
	Owner              *memberResponse             `json:"owner,omitempty"`
	Members            []memberResponse            `json:"members"`
	PendingInvitations []pendingInvitationResponse `json:"pendingInvitations"`
	CanManage          bool                        `json:"canManageInvitations"`
	InvitableRoles     []string                    `json:"invitableRoles"`
}

type principalResponse struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	CurrentProjectID *uuid.UUID `json:"currentProjectId,omitempty"`
	SuperAdmin       bool       `json:"superAdmin"`
}

type navigationResponse struct {
	User           principalResponse `json:"user"`
	CurrentProject *projectResponse  `json:"currentProject,omitempty"`
	Projects       []projectResponse `json:"projects"`
	Permissions    []string          `json:"permissions"`
}

type createRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type updateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type switchRequest struct {
	ProjectID uuid.UUID `json:"projectId"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{}
	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, listOperation, &service.ValidationError{Fields: service.FieldErrors{"page": {"page must be an integer"}}})
			return
		}
		opts.Page = page
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, listOperation, &service.ValidationError{Fields: service.FieldErrors{"pageSize": {"pageSize must be an integer"}}})
			return
		}
		opts.PageSize = size
	}

	result, err := h.svc.List(r.Context(), principal(r.Context()), opts)
	if err != nil {
		h.writeError(w, r, listOperation, err)
		return
	}

	items := make([]projectResponse, 0, len(result.Projects))
	for _, p := range result.Projects {
		items = append(items, toProjectResponse(p))
	}
	httpjson.Write(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := httpjson.Decode(w, r, &body); err != nil {
		h.writeBadBody(w, r, createOperation, err)
		return
	}

	created, err := h.svc.Create(r.Context(), principal(r.Context()), service.CreateInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		h.writeError(w, r, createOperation, err)
		return
	}

	w.Header().Set("Location", "/api/v1/projects/"+created.ID.String())
	httpjson.Write(w, http.StatusCreated, toProjectResponse(created))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r, getOperation)
	if !ok {
		return
	}

	details, err := h.svc.Get(r.Context(), principal(r.Context()), id)
	if err != nil {
		h.writeError(w, r, getOperation, err)
		return
	}

	resp := detailsResponse{
		projectResponse:    toProjectResponse(details.Project),
		Members:            make([]memberResponse, 0, len(details.Members)),
		PendingInvitations: make([]pendingInvitationResponse, 0, len(details.PendingInvitations)),
		CanManage:          details.CanManage,
		InvitableRoles:     rbac.InvitableRoleNames(),
	}
	if details.Owner != nil {
		owner := toMemberResponse(*details.Owner)
		resp.Owner = &owner
	}
	for _, m := range details.Members {
		resp.Members = append(resp.Members, toMemberResponse(m))
	}
	for _, inv := range details.PendingInvitations {
		resp.PendingInvitations = append(resp.PendingInvitations, pendingInvitationResponse(inv))
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r, updateOperation)
	if !ok {
		return
	}
	var body updateRequest
	if err := httpjson.Decode(w, r, &body); err != nil {
		h.writeBadBody(w, r, updateOperation, err)
		return
	}

	updated, err := h.svc.Update(r.Context(), principal(r.Context()), id, service.UpdateInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		h.writeError(w, r, updateOperation, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toProjectResponse(updated))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.projectID(w, r, deleteOperation)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), principal(r.Context()), id); err != nil {
		h.writeError(w, r, deleteOperation, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	var body switchRequest
	if err := httpjson.Decode(w, r, &body); err != nil {
		h.writeBadBody(w, r, switchOperation, err)
		return
	}
	if body.ProjectID == uuid.Nil {
		h.writeError(w, r, switchOperation, &service.ValidationError{Fields: service.FieldErrors{"projectId": {"projectId is required"}}})
		return
	}

	project, err := h.svc.Switch(r.Context(), principal(r.Context()), body.ProjectID)
	if err != nil {
		h.writeError(w, r, switchOperation, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toProjectResponse(project))
}

func (h *Handler) Navigation(w http.ResponseWriter, r *http.Request) {
	nav, err := h.svc.Navigation(r.Context(), principal(r.Context()))
	if err != nil {
		h.writeError(w, r, navigationOperation, err)
		return
	}

	resp := navigationResponse{
		User: principalResponse{
			ID:               nav.Principal.ID,
			Email:            nav.Principal.Email,
			Name:             nav.Principal.Name,
			CurrentProjectID: nav.Principal.CurrentProjectID,
			SuperAdmin:       nav.Principal.SuperAdmin,
		},
		Projects:    make([]projectResponse, 0, len(nav.Projects)),
		Permissions: nav.Permissions,
	}
	if nav.CurrentProject != nil {
		current := toProjectResponse(*nav.CurrentProject)
		resp.CurrentProject = &current
	}
	for _, p := range nav.Projects {
		resp.Projects = append(resp.Projects, toProjectResponse(p))
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func principal(ctx context.Context) identity.Principal {
	p, _ := identity.FromContext(ctx)
	return p
}

func (h *Handler) projectID(w http.ResponseWriter, r *http.Request, op operation) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "projectId"))
	if err != nil {
		h.writeError(w, r, op, service.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func toProjectResponse(p service.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		OwnerID:     p.OwnerID,
		MemberCount: p.MemberCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toMemberResponse(m service.Member) memberResponse {
	roles := m.Roles
	if roles == nil {
		roles = []string{}
	}
	return memberResponse{UserID: m.UserID, Email: m.Email, Name: m.Name, JoinedAt: m.JoinedAt, Roles: roles}
}

func (h *Handler) writeBadBody(w http.ResponseWriter, r *http.Request, op operation, err error) {
	h.loggerFrom(r.Context()).Warn("projects request body rejected", zap.String("operation", string(op)), zap.Error(err))
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
		logger.Error("projects operation failed", fieldsForLog...)
	case status == http.StatusNotFound:
		logger.Info("projects resource not found", fieldsForLog...)
	default:
		logger.Warn("projects request rejected", fieldsForLog...)
	}

	problem.Write(w, r, status, title, detail, fields)
}

func classifyError(err error) (status int, title, detail string, fields service.FieldErrors) {
	var (
		validationErr *service.ValidationError
		conflictErr   *service.ConflictError
		forbiddenErr  *service.ForbiddenError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "Validation failed", "one or more fields are invalid", validationErr.Fields
	case errors.As(err, &conflictErr):
		return http.StatusConflict, "Conflict", "one or more fields conflict with existing data", conflictErr.Fields
	case errors.As(err, &forbiddenErr):
		return http.StatusForbidden, "Forbidden", "you are not allowed to perform this action", forbiddenErr.Fields
	case errors.Is(err, service.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "Unauthorized", "authentication is required", nil
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "Forbidden", "you are not allowed to perform this action", nil
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Resource not found", "project not found", nil
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
