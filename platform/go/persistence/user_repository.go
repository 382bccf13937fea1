package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const UsersTable = "users"

// User represents a row in the users table.
type User struct {
	ID               uuid.UUID  `db:"id"`
	AuthSubject      string     `db:"auth_subject"`
	Email            string     `db:"email"`
	Name             string     `db:"name"`
	CurrentProjectID *uuid.UUID `db:"current_project_id"`
	EmailVerifiedAt  *time.Time `db:"email_verified_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

var (
	// ErrUserNotFound indicates a missing user record.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates a uniqueness violation (e.g., the email belongs to another subject).
	ErrUserConflict = errors.New("user conflict")
)

const userColumns = `id, auth_subject, email, name, current_project_id, email_verified_at, created_at, updated_at`

// UserStore exposes persistence helpers for the users table.
type UserStore struct {
	db DBTX
}

// NewUserStore returns a store bound to db; migrations must have run.
func NewUserStore(db DBTX) (*UserStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &UserStore{db: db}, nil
}

// EnsureUserParams carries the identity claims of an authenticated caller.
type EnsureUserParams struct {
	Subject string
	Email   string
	Name    string
}

// EnsureUser inserts the user for a token subject on first sight and refreshes
// email and name on later calls.
func (s *UserStore) EnsureUser(ctx context.Context, params EnsureUserParams) (User, error) {
	subject := strings.TrimSpace(params.Subject)
	if subject == "" {
		return User{}, errors.New("auth subject is required")
	}

	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, auth_subject, email, name)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (auth_subject) DO UPDATE
        SET email = EXCLUDED.email,
            name = CASE WHEN EXCLUDED.name = '' THEN %s.name ELSE EXCLUDED.name END,
            updated_at = CASE
                WHEN %s.email IS DISTINCT FROM EXCLUDED.email OR (EXCLUDED.name <> '' AND %s.name IS DISTINCT FROM EXCLUDED.name)
                THEN NOW() ELSE %s.updated_at END
        RETURNING %s
    `, UsersTable, UsersTable, UsersTable, UsersTable, UsersTable, userColumns),
		uuid.New(),
		subject,
		strings.ToLower(strings.TrimSpace(params.Email)),
		strings.TrimSpace(params.Name),
	)

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrUserConflict
		}
		return User{}, err
	}
	return user, nil
}

// GetUser returns a single user by identifier.
func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, userColumns, UsersTable), id)
	return scanUser(row)
}

// FindUserByEmail looks a user up by case-insensitive email.
func (s *UserStore) FindUserByEmail(ctx context.Context, email string) (User, error) {
	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE LOWER(email) = LOWER($1)`, userColumns, UsersTable),
		strings.TrimSpace(email))
	return scanUser(row)
}

// SetCurrentProject points the user at projectID; nil clears it.
func (s *UserStore) SetCurrentProject(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) error {
	tag, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET current_project_id = $1, updated_at = NOW() WHERE id = $2
    `, UsersTable), projectID, userID)
	if err != nil {
		return fmt.Errorf("set current project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RepointCurrentProject moves every user whose current project is projectID to
// the earliest-joined other live project they belong to, or to NULL.
func (s *UserStore) RepointCurrentProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	tag, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        UPDATE %s u
        SET current_project_id = (
                SELECT pm.project_id
                FROM %s pm
                JOIN %s p ON p.id = pm.project_id
                WHERE pm.user_id = u.id AND p.deleted_at IS NULL AND p.id <> $1
                ORDER BY pm.joined_at ASC
                LIMIT 1
            ),
            updated_at = NOW()
        WHERE u.current_project_id = $1
    `, UsersTable, ProjectMembersTable, ProjectsTable), projectID)
	if err != nil {
		return 0, fmt.Errorf("repoint current project: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkEmailVerified stamps the verification time once. It reports true only
// for the call that performed the first stamp.
func (s *UserStore) MarkEmailVerified(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET email_verified_at = NOW(), updated_at = NOW()
        WHERE id = $1 AND email_verified_at IS NULL
    `, UsersTable), id)
	if err != nil {
		return false, fmt.Errorf("mark email verified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User

	if err := row.Scan(&user.ID, &user.AuthSubject, &user.Email, &user.Name, &user.CurrentProjectID,
		&user.EmailVerifiedAt, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}

	return user, nil
}
