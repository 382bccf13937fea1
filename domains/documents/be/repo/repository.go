package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-projects/platform/go/tenant"
)

// Repository defines the persistence operations required by the documents service.
// Every call names its tenant.Scope explicitly.
type Repository interface {
	List(ctx context.Context, scope tenant.Scope, limit, offset int) ([]persistence.Document, int, error)
	Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (persistence.Document, error)
	Create(ctx context.Context, scope tenant.Scope, doc persistence.Document) (persistence.Document, error)
	Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, u persistence.DocumentUpdate) (persistence.Document, error)
	Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
}

type postgresRepository struct {
	store *persistence.DocumentStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.DocumentStore) Repository {
	if store == nil {
		panic("document store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) List(ctx context.Context, scope tenant.Scope, limit, offset int) ([]persistence.Document, int, error) {
	return r.store.ListDocuments(ctx, scope, limit, offset)
}

func (r *postgresRepository) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (persistence.Document, error) {
	return r.store.GetDocument(ctx, scope, id)
}

func (r *postgresRepository) Create(ctx context.Context, scope tenant.Scope, doc persistence.Document) (persistence.Document, error) {
	return r.store.CreateDocument(ctx, scope, doc)
}

func (r *postgresRepository) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, u persistence.DocumentUpdate) (persistence.Document, error) {
	return r.store.UpdateDocument(ctx, scope, id, u)
}

func (r *postgresRepository) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	return r.store.DeleteDocument(ctx, scope, id)
}
