package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	"github.com/zenGate-Global/palmyra-projects/platform/go/mail"
	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// state is everything a transaction may roll back.
type state struct {
	projects    map[uuid.UUID]persistence.Project
	users       map[uuid.UUID]persistence.User
	members     map[[2]uuid.UUID]bool
	current     map[uuid.UUID]*uuid.UUID
	roles       map[[2]uuid.UUID]string
	invitations map[uuid.UUID]persistence.Invitation
}

func (s state) clone() state {
	return state{
		projects:    maps.Clone(s.projects),
		users:       maps.Clone(s.users),
		members:     maps.Clone(s.members),
		current:     maps.Clone(s.current),
		roles:       maps.Clone(s.roles),
		invitations: maps.Clone(s.invitations),
	}
}

// fakeRepository keeps rows in maps and restores a snapshot when a
// transaction fails, mirroring the database guarantees the service relies on.
type fakeRepository struct {
	mu sync.Mutex
	state

	markAcceptedErr error
	rolledBack      int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{state: state{
		projects:    map[uuid.UUID]persistence.Project{},
		users:       map[uuid.UUID]persistence.User{},
		members:     map[[2]uuid.UUID]bool{},
		current:     map[uuid.UUID]*uuid.UUID{},
		roles:       map[[2]uuid.UUID]string{},
		invitations: map[uuid.UUID]persistence.Invitation{},
	}}
}

func (f *fakeRepository) addUser(name, email string) identity.Principal {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := persistence.User{ID: uuid.New(), Name: name, Email: email}
	f.users[u.ID] = u
	return identity.Principal{ID: u.ID, Name: name, Email: email}
}

func (f *fakeRepository) addProject(name string, owner identity.Principal) persistence.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := persistence.Project{ID: uuid.New(), Name: name, OwnerID: owner.ID}
	f.projects[p.ID] = p
	f.members[[2]uuid.UUID{p.ID, owner.ID}] = true
	f.roles[[2]uuid.UUID{owner.ID, p.ID}] = rbac.RoleOwner
	return p
}

func (f *fakeRepository) join(projectID uuid.UUID, user identity.Principal, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[[2]uuid.UUID{projectID, user.ID}] = true
	f.roles[[2]uuid.UUID{user.ID, projectID}] = role
}

func (f *fakeRepository) member(projectID, userID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[[2]uuid.UUID{projectID, userID}]
}

func (f *fakeRepository) role(userID, projectID uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[[2]uuid.UUID{userID, projectID}]
}

func (f *fakeRepository) currentProject(userID uuid.UUID) *uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current[userID]
}

func (f *fakeRepository) invitation(id uuid.UUID) (persistence.Invitation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[id]
	return inv, ok
}

func (f *fakeRepository) invitationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invitations)
}

func (f *fakeRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	snapshot := f.state.clone()
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.state = snapshot
		f.rolledBack++
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeRepository) GetProject(_ context.Context, id uuid.UUID) (persistence.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok || p.DeletedAt != nil {
		return persistence.Project{}, persistence.ErrProjectNotFound
	}
	return p, nil
}

func (f *fakeRepository) IsMember(_ context.Context, projectID, userID uuid.UUID) (bool, error) {
	return f.member(projectID, userID), nil
}

func (f *fakeRepository) AddMember(_ context.Context, projectID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := [2]uuid.UUID{projectID, userID}
	if f.members[key] {
		return false, nil
	}
	f.members[key] = true
	return true, nil
}

func (f *fakeRepository) FindUserByEmail(_ context.Context, email string) (persistence.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return persistence.User{}, persistence.ErrUserNotFound
}

func (f *fakeRepository) SetCurrentProject(_ context.Context, userID uuid.UUID, projectID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current[userID] = projectID
	return nil
}

func (f *fakeRepository) PurgeExpiredPending(_ context.Context, projectID uuid.UUID, email string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, inv := range f.invitations {
		if inv.ProjectID == projectID && strings.EqualFold(inv.Email, email) && inv.AcceptedAt == nil && !now.Before(inv.ExpiresAt) {
			delete(f.invitations, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) CreateInvitation(_ context.Context, inv persistence.Invitation) (persistence.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.invitations {
		if existing.ProjectID == inv.ProjectID && existing.Email == inv.Email && existing.AcceptedAt == nil {
			return persistence.Invitation{}, persistence.ErrInvitationPending
		}
		if existing.Token == inv.Token {
			return persistence.Invitation{}, persistence.ErrInvitationTokenTaken
		}
	}
	inv.ID = uuid.New()
	inv.CreatedAt = inv.ExpiresAt.Add(-DefaultTTL)
	inv.UpdatedAt = inv.CreatedAt
	f.invitations[inv.ID] = inv
	return inv, nil
}

func (f *fakeRepository) FindInvitationByToken(_ context.Context, token string) (persistence.InvitationDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.Token != token {
			continue
		}
		project, ok := f.projects[inv.ProjectID]
		if !ok || project.DeletedAt != nil {
			break
		}
		return persistence.InvitationDetails{
			Invitation:  inv,
			ProjectName: project.Name,
			InviterName: f.users[inv.InvitedBy].Name,
		}, nil
	}
	return persistence.InvitationDetails{}, persistence.ErrInvitationNotFound
}

func (f *fakeRepository) LockPendingInvitation(_ context.Context, token string, now time.Time) (persistence.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.Token == token && inv.AcceptedAt == nil && inv.ExpiresAt.After(now) {
			return inv, nil
		}
	}
	return persistence.Invitation{}, persistence.ErrInvitationNotFound
}

func (f *fakeRepository) MarkInvitationAccepted(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markAcceptedErr != nil {
		return f.markAcceptedErr
	}
	inv, ok := f.invitations[id]
	if !ok || inv.AcceptedAt != nil {
		return persistence.ErrInvitationNotFound
	}
	inv.AcceptedAt = &at
	f.invitations[id] = inv
	return nil
}

func (f *fakeRepository) DeleteInvitation(_ context.Context, projectID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[id]
	if !ok || inv.ProjectID != projectID {
		return persistence.ErrInvitationNotFound
	}
	delete(f.invitations, id)
	return nil
}

func (f *fakeRepository) RefreshInvitation(_ context.Context, projectID, id uuid.UUID, token string, expiresAt time.Time) (persistence.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[id]
	if !ok || inv.ProjectID != projectID {
		return persistence.Invitation{}, persistence.ErrInvitationNotFound
	}
	for otherID, other := range f.invitations {
		if otherID != id && other.Token == token {
			return persistence.Invitation{}, persistence.ErrInvitationTokenTaken
		}
	}
	inv.Token = token
	inv.ExpiresAt = expiresAt
	f.invitations[id] = inv
	return inv, nil
}

// fakeAuthorizer applies the invitation manager policy over the fake's role table.
type fakeAuthorizer struct {
	repo      *fakeRepository
	assignErr error
}

func (a *fakeAuthorizer) Authorize(_ context.Context, p identity.Principal, action rbac.Action, r rbac.Resource) (rbac.Decision, error) {
	if action != rbac.ActionManageInvitations {
		return rbac.Decision{}, fmt.Errorf("unexpected action %s", action)
	}
	switch {
	case p.SuperAdmin:
		return rbac.Decision{Allowed: true, Reason: "super admin"}, nil
	case p.ID == r.OwnerID:
		return rbac.Decision{Allowed: true, Reason: "owner"}, nil
	}
	switch a.repo.role(p.ID, r.ProjectID) {
	case rbac.RoleOwner, rbac.RoleAdmin:
		return rbac.Decision{Allowed: true, Reason: "role"}, nil
	}
	return rbac.Decision{Reason: "cannot manage invitations"}, nil
}

func (a *fakeAuthorizer) AssignRole(_ context.Context, userID uuid.UUID, roleName string, projectID *uuid.UUID) error {
	if a.assignErr != nil {
		return a.assignErr
	}
	if projectID == nil {
		return errors.New("project required")
	}
	a.repo.mu.Lock()
	defer a.repo.mu.Unlock()
	a.repo.roles[[2]uuid.UUID{userID, *projectID}] = roleName
	return nil
}

type mockDispatcher struct {
	mu        sync.Mutex
	messages  []mail.Message
	enqueueFn func(ctx context.Context, msg mail.Message) error
}

func (m *mockDispatcher) Enqueue(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, msg)
	}
	return nil
}

func (m *mockDispatcher) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

type countingRecorder struct {
	mu     sync.Mutex
	events map[string]int
}

func (c *countingRecorder) RecordInvitation(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events == nil {
		c.events = map[string]int{}
	}
	c.events[event]++
}

func (c *countingRecorder) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[event]
}

type sequenceTokens struct {
	mu     sync.Mutex
	n      int
	repeat int
}

// Next returns token-1, token-2, ... repeating the first value repeat extra times.
func (s *sequenceTokens) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repeat > 0 && s.n == 1 {
		s.repeat--
		return "token-1", nil
	}
	s.n++
	return fmt.Sprintf("token-%d", s.n), nil
}
