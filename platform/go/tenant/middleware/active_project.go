package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	platformlogging "github.com/zenGate-Global/palmyra-projects/platform/go/logging"
	"github.com/zenGate-Global/palmyra-projects/platform/go/tenant"
)

// WithActiveProject copies the principal's current project onto the request
// context so repositories and authorization checks downstream use it. It must
// run after identity.Middleware. Requests without a principal or without a
// current project pass through unchanged.
func WithActiveProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := identity.FromContext(r.Context())
		if !ok || principal.CurrentProjectID == nil {
			next.ServeHTTP(w, r)
			return
		}

		projectID := *principal.CurrentProjectID
		ctx := tenant.WithActiveProject(r.Context(), projectID)
		if logger, ok := platformlogging.FromContext(ctx); ok {
			ctx = platformlogging.WithLogger(ctx, logger.With(zap.String("project_id", projectID.String())))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
