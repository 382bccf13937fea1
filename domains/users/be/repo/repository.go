package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
)

// Repository defines the persistence operations required by the users service.
type Repository interface {
	Ensure(ctx context.Context, params persistence.EnsureUserParams) (persistence.User, error)
	Get(ctx context.Context, id uuid.UUID) (persistence.User, error)
	FindByEmail(ctx context.Context, email string) (persistence.User, error)
	MarkEmailVerified(ctx context.Context, id uuid.UUID) (bool, error)
}

type postgresRepository struct {
	store *persistence.UserStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.UserStore) Repository {
	if store == nil {
		panic("user store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Ensure(ctx context.Context, params persistence.EnsureUserParams) (persistence.User, error) {
	return r.store.EnsureUser(ctx, params)
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (persistence.User, error) {
	return r.store.GetUser(ctx, id)
}

func (r *postgresRepository) FindByEmail(ctx context.Context, email string) (persistence.User, error) {
	return r.store.FindUserByEmail(ctx, email)
}

func (r *postgresRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.store.MarkEmailVerified(ctx, id)
}
