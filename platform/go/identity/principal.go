// Package identity resolves the authenticated caller into a local Principal
// and carries it on the request context.
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the local user acting on a request.
type Principal struct {
	ID               uuid.UUID
	Email            string
	Name             string
	CurrentProjectID *uuid.UUID
	EmailVerified    bool
	SuperAdmin       bool
}

type ctxKey struct{}

// WithPrincipal returns a derived context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal on ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	if !ok || p.ID == uuid.Nil {
		return Principal{}, false
	}
	return p, true
}
