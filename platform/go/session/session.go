// Package session keeps the pending invitation token of an anonymous visitor
// across the login or registration flow.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/zenGate-Global/palmyra-projects/platform/go/securerand"
)

// CookieName carries the opaque session id.
const CookieName = "palmyra_session"

// Store remembers one pending invitation token per session.
type Store interface {
	PutPendingInvitation(ctx context.Context, sessionID, token string) error
	// PendingInvitation returns the token stored for sessionID without removing it.
	PendingInvitation(ctx context.Context, sessionID string) (string, bool, error)
	ForgetPendingInvitation(ctx context.Context, sessionID string) error
}

// ID returns the session id carried by r, if any.
func ID(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// EnsureID returns the session id of r, issuing a new cookie when absent.
func EnsureID(w http.ResponseWriter, r *http.Request, ttl time.Duration) (string, error) {
	if id, ok := ID(r); ok {
		return id, nil
	}
	id, err := securerand.Token()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewMemoryStore builds a MemoryStore. now may be nil.
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{ttl: ttl, now: now, entries: map[string]entry{}}
}

// PutPendingInvitation implements Store.
func (s *MemoryStore) PutPendingInvitation(_ context.Context, sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.entries[sessionID] = entry{token: token, expiresAt: now.Add(s.ttl)}
	return nil
}

// PendingInvitation implements Store.
func (s *MemoryStore) PendingInvitation(_ context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sessionID]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, sessionID)
		return "", false, nil
	}
	return e.token, true, nil
}

// ForgetPendingInvitation implements Store.
func (s *MemoryStore) ForgetPendingInvitation(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionID)
	return nil
}
