package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	platformlogging "github.com/zenGate-Global/palmyra-projects/platform/go/logging"
	"github.com/zenGate-Global/palmyra-projects/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-projects/platform/go/tenant"
)

// RequestTrace populates the context with request-scoped AuditInfo. It runs
// after identity resolution and the active project middleware so both are
// known when present.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		audit := requesttrace.Anonymous(requestID)
		if p, ok := identity.FromContext(r.Context()); ok {
			var active *uuid.UUID
			if id, ok := tenant.ActiveProject(r.Context()); ok {
				active = &id
			}
			audit = requesttrace.FromPrincipal(p, active, requestID)
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger, ok := platformlogging.FromContext(ctx); ok {
			ctx = platformlogging.WithLogger(ctx, logger.With(zap.String("actor_kind", string(audit.ActorKind))))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
