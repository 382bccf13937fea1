package rbac

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
)

// memoryRoles is an in-memory RoleRepository.
type memoryRoles struct {
	mu          sync.Mutex
	permissions map[string]struct{}
	roles       map[uuid.UUID]persistence.Role
	grants      map[uuid.UUID][]string
	assignments map[uuid.UUID]map[uuid.UUID]struct{}
	findCalls   int
}

func newMemoryRoles() *memoryRoles {
	return &memoryRoles{
		permissions: map[string]struct{}{},
		roles:       map[uuid.UUID]persistence.Role{},
		grants:      map[uuid.UUID][]string{},
		assignments: map[uuid.UUID]map[uuid.UUID]struct{}{},
	}
}

func sameScope(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memoryRoles) EnsurePermissions(_ context.Context, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.permissions[n] = struct{}{}
	}
	return nil
}

func (m *memoryRoles) FindOrCreateRole(ctx context.Context, name string, projectID *uuid.UUID) (persistence.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name && sameScope(r.ProjectID, projectID) {
			return r, nil
		}
	}
	r := persistence.Role{ID: uuid.New(), Name: name, ProjectID: projectID}
	m.roles[r.ID] = r
	return r, nil
}

func (m *memoryRoles) FindRole(_ context.Context, name string, projectID *uuid.UUID) (persistence.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	for _, r := range m.roles {
		if r.Name == name && sameScope(r.ProjectID, projectID) {
			return r, nil
		}
	}
	return persistence.Role{}, persistence.ErrRoleNotFound
}

func (m *memoryRoles) ReplaceRolePermissions(_ context.Context, roleID uuid.UUID, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return persistence.ErrRoleNotFound
	}
	for _, n := range names {
		m.permissions[n] = struct{}{}
	}
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	m.grants[roleID] = slices.Compact(sorted)
	return nil
}

func (m *memoryRoles) AssignRole(_ context.Context, userID, roleID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignments[userID] == nil {
		m.assignments[userID] = map[uuid.UUID]struct{}{}
	}
	m.assignments[userID][roleID] = struct{}{}
	return nil
}

// visibleRoles returns the roles of userID scoped to projectID or global.
func (m *memoryRoles) visibleRoles(userID uuid.UUID, projectID *uuid.UUID) []persistence.Role {
	var out []persistence.Role
	for roleID := range m.assignments[userID] {
		r := m.roles[roleID]
		if r.ProjectID == nil || (projectID != nil && *r.ProjectID == *projectID) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memoryRoles) UserHasRole(_ context.Context, userID uuid.UUID, name string, projectID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.visibleRoles(userID, projectID) {
		if r.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRoles) UserHasPermission(_ context.Context, userID uuid.UUID, permission string, projectID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.visibleRoles(userID, projectID) {
		if slices.Contains(m.grants[r.ID], permission) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRoles) UserPermissions(_ context.Context, userID uuid.UUID, projectID *uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.visibleRoles(userID, projectID) {
		out = append(out, m.grants[r.ID]...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (m *memoryRoles) projectRoles(projectID uuid.UUID) map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]string{}
	for _, r := range m.roles {
		if r.ProjectID != nil && *r.ProjectID == projectID {
			out[r.Name] = m.grants[r.ID]
		}
	}
	return out
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memoryMembers map[uuid.UUID]map[uuid.UUID]bool

func (m memoryMembers) IsMember(_ context.Context, projectID, userID uuid.UUID) (bool, error) {
	return m[projectID][userID], nil
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) RecordDecision(action, resource, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[action+"/"+resource+"/"+outcome]++
}
