package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-projects/platform/go/tenant"
)

const DocumentsTable = "documents"

// Document is project-owned content. Every read and write goes through a tenant.Scope.
type Document struct {
	ID        uuid.UUID `db:"id"`
	ProjectID uuid.UUID `db:"project_id"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	CreatedBy uuid.UUID `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

var (
	ErrDocumentNotFound = errors.New("document not found")
	// ErrScopeMismatch means a write named a project other than the scope's.
	ErrScopeMismatch = errors.New("document project does not match scope")
)

const documentColumns = `d.id, d.project_id, d.title, d.body, d.created_by, d.created_at, d.updated_at`

// DocumentStore persists documents filtered by an explicit tenant.Scope.
type DocumentStore struct {
	db DBTX
}

// NewDocumentStore returns a store bound to db; migrations must have run.
func NewDocumentStore(db DBTX) (*DocumentStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &DocumentStore{db: db}, nil
}

// scopeFilter appends the project predicate for scope to args and returns the
// SQL fragment to AND into a WHERE clause.
func scopeFilter(scope tenant.Scope, column string, args []any) (string, []any, error) {
	if err := scope.Validate(); err != nil {
		return "", nil, err
	}
	if projectID, ok := scope.ProjectID(); ok {
		args = append(args, projectID)
		return fmt.Sprintf(" AND %s = $%d", column, len(args)), args, nil
	}
	return "", args, nil
}

// ListDocuments returns documents visible under scope, newest first, and the total.
func (s *DocumentStore) ListDocuments(ctx context.Context, scope tenant.Scope, limit, offset int) ([]Document, int, error) {
	filter, args, err := scopeFilter(scope, "d.project_id", nil)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s d WHERE TRUE%s`, DocumentsTable, filter),
		args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	rows, err := conn(ctx, s.db).Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s d WHERE TRUE%s
        ORDER BY d.created_at DESC, d.id
        LIMIT %d OFFSET %d
    `, documentColumns, DocumentsTable, filter, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// GetDocument returns a document visible under scope.
func (s *DocumentStore) GetDocument(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Document, error) {
	filter, args, err := scopeFilter(scope, "d.project_id", []any{id})
	if err != nil {
		return Document{}, err
	}

	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s d WHERE d.id = $1%s`,
		documentColumns, DocumentsTable, filter), args...)
	return scanDocument(row)
}

// CreateDocument inserts doc, stamping the scope's project when doc has none.
// An unscoped create must name the project explicitly.
func (s *DocumentStore) CreateDocument(ctx context.Context, scope tenant.Scope, doc Document) (Document, error) {
	if err := scope.Validate(); err != nil {
		return Document{}, err
	}
	if projectID, ok := scope.ProjectID(); ok {
		switch doc.ProjectID {
		case uuid.Nil:
			doc.ProjectID = projectID
		case projectID:
		default:
			return Document{}, ErrScopeMismatch
		}
	}
	if doc.ProjectID == uuid.Nil {
		return Document{}, tenant.ErrScopeRequired
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}

	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s AS d (id, project_id, title, body, created_by)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING %s
    `, DocumentsTable, documentColumns), doc.ID, doc.ProjectID, strings.TrimSpace(doc.Title), doc.Body, doc.CreatedBy)
	return scanDocument(row)
}

// DocumentUpdate carries optional column changes.
type DocumentUpdate struct {
	Title *string
	Body  *string
}

// UpdateDocument applies u to a document visible under scope.
func (s *DocumentStore) UpdateDocument(ctx context.Context, scope tenant.Scope, id uuid.UUID, u DocumentUpdate) (Document, error) {
	filter, args, err := scopeFilter(scope, "d.project_id", []any{id, u.Title, u.Body})
	if err != nil {
		return Document{}, err
	}

	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s AS d
        SET title = COALESCE($2, d.title), body = COALESCE($3, d.body), updated_at = NOW()
        WHERE d.id = $1%s
        RETURNING %s
    `, DocumentsTable, filter, documentColumns), args...)
	return scanDocument(row)
}

// DeleteDocument removes a document visible under scope.
func (s *DocumentStore) DeleteDocument(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	filter, args, err := scopeFilter(scope, "d.project_id", []any{id})
	if err != nil {
		return err
	}

	tag, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`DELETE FROM %s d WHERE d.id = $1%s`, DocumentsTable, filter), args...)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.ProjectID, &d.Title, &d.Body, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, err
	}
	return d, nil
}
