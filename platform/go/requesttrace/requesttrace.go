// Package requesttrace records who is behind the current operation so
// services and logs can attribute their effects.
package requesttrace

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
)

type contextKey string

const ctxAuditInfo contextKey = "PALMYRA_REQUEST_TRACE"

// ActorKind represents who initiated an operation.
type ActorKind string

const (
	ActorKindUser       ActorKind = "user"
	ActorKindSuperAdmin ActorKind = "super_admin"
	ActorKindAnonymous  ActorKind = "anonymous"
	ActorKindSystem     ActorKind = "system"
)

// AuditInfo captures request-scoped metadata for traceability.
// UserID is set for user and super admin actors; ProjectID only when an
// active project is known.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *uuid.UUID
	ProjectID *uuid.UUID
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxAuditInfo).(AuditInfo)
	return audit, ok
}

// FromContextOrSystem returns the AuditInfo on ctx, or a system record when
// absent. Background work has no request behind it.
func FromContextOrSystem(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return System("")
}

// FromPrincipal builds the AuditInfo of an authenticated principal.
func FromPrincipal(p identity.Principal, activeProject *uuid.UUID, requestID string) AuditInfo {
	kind := ActorKindUser
	if p.SuperAdmin {
		kind = ActorKindSuperAdmin
	}
	userID := p.ID
	return AuditInfo{ActorKind: kind, UserID: &userID, ProjectID: activeProject, RequestID: requestID}
}

// Anonymous builds an AuditInfo for unauthenticated requests, such as an
// invitee opening an invitation link.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for CLI and background operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
