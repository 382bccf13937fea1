package service

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-projects/domains/invitations/be/repo"
	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	"github.com/zenGate-Global/palmyra-projects/platform/go/mail"
	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
	"github.com/zenGate-Global/palmyra-projects/platform/go/securerand"
	"github.com/zenGate-Global/palmyra-projects/platform/go/session"
)

// DefaultTTL is how long an invitation stays acceptable after it is sent.
const DefaultTTL = 7 * 24 * time.Hour

const (
	maxEmailLength = 255
	tokenAttempts  = 3
)

// State is the effective lifecycle state of an invitation.
type State string

const (
	StatePending  State = "pending"
	StateAccepted State = "accepted"
	StateExpired  State = "expired"
)

// StateAt derives the state of inv at now. Expiry is exclusive: an
// invitation is expired from its expires_at instant onwards.
func StateAt(inv persistence.Invitation, now time.Time) State {
	switch {
	case inv.AcceptedAt != nil:
		return StateAccepted
	case !now.Before(inv.ExpiresAt):
		return StateExpired
	default:
		return StatePending
	}
}

// Next tells an anonymous invitee where to authenticate.
type Next string

const (
	NextLogin    Next = "login"
	NextRegister Next = "register"
)

// Invitation is the domain view of an invitation. The token is never exposed.
type Invitation struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	Email      string
	Role       string
	State      State
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// CreateInput is the payload of a new invitation.
type CreateInput struct {
	Email string
	Role  string
}

// Resolution is what the invitee sees before accepting.
type Resolution struct {
	Invitation         Invitation
	ProjectName        string
	InviterName        string
	HasExistingAccount bool
	// Accepted is set when the caller was the invitee and Resolve accepted on their behalf.
	Accepted bool
}

// Acceptance reports the outcome of Accept.
type Acceptance struct {
	ProjectID uuid.UUID
	// Deferred is set when the caller was anonymous; the token waits in the session.
	Deferred bool
	Next     Next
}

// Authorizer answers authorization questions and grants roles.
type Authorizer interface {
	Authorize(ctx context.Context, p identity.Principal, action rbac.Action, r rbac.Resource) (rbac.Decision, error)
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string, projectID *uuid.UUID) error
}

// Recorder counts invitation lifecycle events.
type Recorder interface {
	RecordInvitation(event string)
}

// Service defines the business operations for invitations.
type Service interface {
	Create(ctx context.Context, p identity.Principal, projectID uuid.UUID, input CreateInput) (Invitation, error)
	Resolve(ctx context.Context, p identity.Principal, token string) (Resolution, error)
	Accept(ctx context.Context, p identity.Principal, sessionID, token string) (Acceptance, error)
	ResumePending(ctx context.Context, p identity.Principal, sessionID string) (Acceptance, error)
	Cancel(ctx context.Context, p identity.Principal, projectID, invitationID uuid.UUID) error
	Resend(ctx context.Context, p identity.Principal, projectID, invitationID uuid.UUID) (Invitation, error)
}

// Config carries tunables and test seams.
type Config struct {
	// AppURL prefixes the accept link sent by mail.
	AppURL   string
	TTL      time.Duration
	Now      func() time.Time
	Token    func() (string, error)
	Recorder Recorder
}

type noopRecorder struct{}

func (noopRecorder) RecordInvitation(string) {}

type service struct {
	repo     repo.Repository
	authz    Authorizer
	mail     mail.Dispatcher
	sessions session.Store
	logger   *zap.Logger

	appURL   string
	ttl      time.Duration
	now      func() time.Time
	token    func() (string, error)
	recorder Recorder
}

// New constructs an invitations Service.
func New(r repo.Repository, authz Authorizer, dispatcher mail.Dispatcher, sessions session.Store, logger *zap.Logger, cfg Config) Service {
	if r == nil {
		panic("invitations repository is required")
	}
	if authz == nil {
		panic("authorizer is required")
	}
	if dispatcher == nil {
		panic("mail dispatcher is required")
	}
	if sessions == nil {
		panic("session store is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Token == nil {
		cfg.Token = securerand.Token
	}
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	return &service{
		repo:     r,
		authz:    authz,
		mail:     dispatcher,
		sessions: sessions,
		logger:   logger,
		appURL:   strings.TrimRight(cfg.AppURL, "/"),
		ttl:      cfg.TTL,
		now:      cfg.Now,
		token:    cfg.Token,
		recorder: cfg.Recorder,
	}
}

func (s *service) Create(ctx context.Context, p identity.Principal, projectID uuid.UUID, input CreateInput) (Invitation, error) {
	project, err := s.authorize(ctx, p, projectID)
	if err != nil {
		return Invitation{}, err
	}

	fieldErrors := FieldErrors{}
	email := validateEmail(fieldErrors, input.Email)
	role := strings.TrimSpace(input.Role)
	if !rbac.IsInvitable(role) {
		fieldErrors.add("role", "role must be one of "+strings.Join(rbac.InvitableRoleNames(), ", "))
	}
	if len(fieldErrors) > 0 {
		return Invitation{}, &ValidationError{Fields: fieldErrors}
	}

	var created persistence.Invitation
	for attempt := 1; ; attempt++ {
		token, err := s.token()
		if err != nil {
			return Invitation{}, fmt.Errorf("generate invitation token: %w", err)
		}
		now := s.now()

		err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := s.repo.PurgeExpiredPending(ctx, project.ID, email, now); err != nil {
				return err
			}
			member, err := s.isMember(ctx, project.ID, email)
			if err != nil {
				return err
			}
			if member {
				return &ConflictError{Fields: FieldErrors{"email": {msgAlreadyMember}}}
			}
			created, err = s.repo.CreateInvitation(ctx, persistence.Invitation{
				ProjectID: project.ID,
				InvitedBy: p.ID,
				Email:     email,
				Role:      role,
				Token:     token,
				ExpiresAt: now.Add(s.ttl),
			})
			return err
		})
		if errors.Is(err, persistence.ErrInvitationTokenTaken) && attempt < tokenAttempts {
			continue
		}
		if err != nil {
			return Invitation{}, mapPersistenceError(err)
		}
		break
	}

	s.recorder.RecordInvitation("created")
	s.logger.Info("invitation created",
		zap.String("invitation_id", created.ID.String()),
		zap.String("project_id", project.ID.String()),
		zap.String("role", created.Role),
	)
	s.notify(ctx, created, project.Name, displayName(p))

	return toInvitation(created, s.now()), nil
}

func (s *service) Resolve(ctx context.Context, p identity.Principal, token string) (Resolution, error) {
	details, err := s.repo.FindInvitationByToken(ctx, token)
	if errors.Is(err, persistence.ErrInvitationNotFound) {
		return Resolution{}, ErrInvitationInvalid
	}
	if err != nil {
		return Resolution{}, err
	}

	now := s.now()
	switch StateAt(details.Invitation, now) {
	case StateAccepted:
		return Resolution{}, ErrInvitationInvalid
	case StateExpired:
		return Resolution{}, ErrInvitationExpired
	}

	existing, err := s.accountExists(ctx, details.Email)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{
		Invitation:         toInvitation(details.Invitation, now),
		ProjectName:        details.ProjectName,
		InviterName:        details.InviterName,
		HasExistingAccount: existing,
	}

	if p.ID != uuid.Nil && strings.EqualFold(strings.TrimSpace(p.Email), details.Email) {
		if _, err := s.accept(ctx, p, token); err != nil {
			if errors.Is(err, ErrNotFound) {
				// Accepted or expired between the lookup and the lock.
				return Resolution{}, ErrInvitationInvalid
			}
			return Resolution{}, err
		}
		res.Accepted = true
		res.Invitation.State = StateAccepted
	}
	return res, nil
}

func (s *service) Accept(ctx context.Context, p identity.Principal, sessionID, token string) (Acceptance, error) {
	if p.ID != uuid.Nil {
		return s.accept(ctx, p, token)
	}

	details, err := s.repo.FindInvitationByToken(ctx, token)
	if err != nil {
		return Acceptance{}, mapPersistenceError(err)
	}
	if StateAt(details.Invitation, s.now()) != StatePending {
		return Acceptance{}, ErrNotFound
	}
	if sessionID == "" {
		return Acceptance{}, ErrAuthenticationRequired
	}

	if err := s.sessions.PutPendingInvitation(ctx, sessionID, token); err != nil {
		return Acceptance{}, fmt.Errorf("remember pending invitation: %w", err)
	}
	existing, err := s.accountExists(ctx, details.Email)
	if err != nil {
		return Acceptance{}, err
	}

	next := NextRegister
	if existing {
		next = NextLogin
	}
	s.recorder.RecordInvitation("deferred")
	return Acceptance{ProjectID: details.ProjectID, Deferred: true, Next: next}, nil
}

func (s *service) ResumePending(ctx context.Context, p identity.Principal, sessionID string) (Acceptance, error) {
	if p.ID == uuid.Nil {
		return Acceptance{}, ErrAuthenticationRequired
	}
	if sessionID == "" {
		return Acceptance{}, ErrNoPendingInvitation
	}

	token, ok, err := s.sessions.PendingInvitation(ctx, sessionID)
	if err != nil {
		return Acceptance{}, fmt.Errorf("read pending invitation: %w", err)
	}
	if !ok {
		return Acceptance{}, ErrNoPendingInvitation
	}

	// The token stays in the session until the accept succeeds or the
	// invitation is gone, so a transient failure can be retried.
	acceptance, err := s.accept(ctx, p, token)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Acceptance{}, err
	}
	if ferr := s.sessions.ForgetPendingInvitation(ctx, sessionID); ferr != nil {
		s.logger.Warn("forget pending invitation", zap.Error(ferr))
	}
	return acceptance, err
}

func (s *service) Cancel(ctx context.Context, p identity.Principal, projectID, invitationID uuid.UUID) error {
	project, err := s.authorize(ctx, p, projectID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteInvitation(ctx, project.ID, invitationID); err != nil {
		return mapPersistenceError(err)
	}

	s.recorder.RecordInvitation("cancelled")
	s.logger.Info("invitation cancelled",
		zap.String("invitation_id", invitationID.String()),
		zap.String("project_id", project.ID.String()),
		zap.String("actor_id", p.ID.String()),
	)
	return nil
}

func (s *service) Resend(ctx context.Context, p identity.Principal, projectID, invitationID uuid.UUID) (Invitation, error) {
	project, err := s.authorize(ctx, p, projectID)
	if err != nil {
		return Invitation{}, err
	}

	var refreshed persistence.Invitation
	for attempt := 1; ; attempt++ {
		token, err := s.token()
		if err != nil {
			return Invitation{}, fmt.Errorf("generate invitation token: %w", err)
		}
		refreshed, err = s.repo.RefreshInvitation(ctx, project.ID, invitationID, token, s.now().Add(s.ttl))
		if errors.Is(err, persistence.ErrInvitationTokenTaken) && attempt < tokenAttempts {
			continue
		}
		if err != nil {
			return Invitation{}, mapPersistenceError(err)
		}
		break
	}

	// An accepted invitation keeps its acceptance; a fresh link would only
	// resolve as invalid, so nothing is mailed.
	if refreshed.AcceptedAt != nil {
		s.logger.Info("accepted invitation refreshed without notification",
			zap.String("invitation_id", refreshed.ID.String()),
			zap.String("project_id", project.ID.String()),
		)
		return toInvitation(refreshed, s.now()), nil
	}

	// The mail names whoever sent the invitation originally.
	inviter := displayName(p)
	if details, err := s.repo.FindInvitationByToken(ctx, refreshed.Token); err != nil {
		s.logger.Warn("load original inviter", zap.String("invitation_id", refreshed.ID.String()), zap.Error(err))
	} else if details.InviterName != "" {
		inviter = details.InviterName
	}

	s.recorder.RecordInvitation("resent")
	s.logger.Info("invitation resent",
		zap.String("invitation_id", refreshed.ID.String()),
		zap.String("project_id", project.ID.String()),
	)
	s.notify(ctx, refreshed, project.Name, inviter)

	return toInvitation(refreshed, s.now()), nil
}

// accept applies every effect of accepting token in one transaction.
func (s *service) accept(ctx context.Context, p identity.Principal, token string) (Acceptance, error) {
	now := s.now()

	var inv persistence.Invitation
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.LockPendingInvitation(ctx, token, now)
		if err != nil {
			return err
		}
		if _, err := s.repo.AddMember(ctx, inv.ProjectID, p.ID); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		if err := s.authz.AssignRole(ctx, p.ID, inv.Role, &inv.ProjectID); err != nil {
			return fmt.Errorf("assign invited role: %w", err)
		}
		if err := s.repo.MarkInvitationAccepted(ctx, inv.ID, now); err != nil {
			return err
		}
		return s.repo.SetCurrentProject(ctx, p.ID, &inv.ProjectID)
	})
	if err != nil {
		return Acceptance{}, mapPersistenceError(err)
	}

	s.recorder.RecordInvitation("accepted")
	s.logger.Info("invitation accepted",
		zap.String("invitation_id", inv.ID.String()),
		zap.String("project_id", inv.ProjectID.String()),
		zap.String("user_id", p.ID.String()),
		zap.String("role", inv.Role),
	)
	return Acceptance{ProjectID: inv.ProjectID}, nil
}

// authorize loads the project and requires the right to manage its invitations.
func (s *service) authorize(ctx context.Context, p identity.Principal, projectID uuid.UUID) (persistence.Project, error) {
	if p.ID == uuid.Nil {
		return persistence.Project{}, ErrAuthenticationRequired
	}

	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return persistence.Project{}, mapPersistenceError(err)
	}

	decision, err := s.authz.Authorize(ctx, p, rbac.ActionManageInvitations, rbac.Project(project.ID, project.OwnerID))
	if err != nil {
		return persistence.Project{}, err
	}
	if !decision.Allowed {
		return persistence.Project{}, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}
	return project, nil
}

func (s *service) isMember(ctx context.Context, projectID uuid.UUID, email string) (bool, error) {
	user, err := s.repo.FindUserByEmail(ctx, email)
	if errors.Is(err, persistence.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.repo.IsMember(ctx, projectID, user.ID)
}

func (s *service) accountExists(ctx context.Context, email string) (bool, error) {
	_, err := s.repo.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, persistence.ErrUserNotFound):
		return false, nil
	default:
		return false, err
	}
}

// notify enqueues the invitation mail. The invitation is already stored, so
// failures are logged and never surface to the caller.
func (s *service) notify(ctx context.Context, inv persistence.Invitation, projectName, inviterName string) {
	msg := mail.Message{
		To:          inv.Email,
		Subject:     mail.InvitationSubject(projectName),
		InviterName: inviterName,
		ProjectName: projectName,
		Role:        inv.Role,
		AcceptURL:   s.appURL + "/invitations/" + inv.Token,
		ExpiresOn:   inv.ExpiresAt,
	}
	if err := s.mail.Enqueue(ctx, msg); err != nil {
		s.logger.Error("enqueue invitation mail",
			zap.String("invitation_id", inv.ID.String()),
			zap.Error(err),
		)
	}
}

func validateEmail(fieldErrors FieldErrors, raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case email == "":
		fieldErrors.add("email", "email is required")
	case len(email) > maxEmailLength:
		fieldErrors.add("email", fmt.Sprintf("email must be at most %d characters", maxEmailLength))
	default:
		addr, err := netmail.ParseAddress(email)
		if err != nil || addr.Address != email {
			fieldErrors.add("email", "email must be a valid email address")
		}
	}
	return email
}

func displayName(p identity.Principal) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return p.Email
}

func toInvitation(inv persistence.Invitation, now time.Time) Invitation {
	return Invitation{
		ID:         inv.ID,
		ProjectID:  inv.ProjectID,
		Email:      inv.Email,
		Role:       inv.Role,
		State:      StateAt(inv, now),
		ExpiresAt:  inv.ExpiresAt,
		AcceptedAt: inv.AcceptedAt,
		CreatedAt:  inv.CreatedAt,
	}
}
