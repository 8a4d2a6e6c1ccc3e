package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultSessionDebounce is the quiet period applied to session change notifications.
const DefaultSessionDebounce = 100 * time.Millisecond

// ErrNoSession is returned when no authenticated user or token is available.
var ErrNoSession = errors.New("no authenticated session")

// SessionProvider exposes the acting user for the current call.
type SessionProvider interface {
	CurrentUser(ctx context.Context) (*UserCredentials, error)
}

// TokenSource supplies the outbound credential and can renew it once it is rejected.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// RequestSession resolves the current user from the request context populated by JWT.
type RequestSession struct{}

// CurrentUser implements SessionProvider.
func (RequestSession) CurrentUser(ctx context.Context) (*UserCredentials, error) {
	creds, ok := UserFromContext(ctx)
	if !ok {
		return nil, ErrNoSession
	}
	return creds, nil
}

// Session is an issued credential for outbound calls.
type Session struct {
	Token     string
	User      *UserCredentials
	ExpiresAt time.Time
}

// RefreshFunc issues a new session from the current one.
type RefreshFunc func(ctx context.Context, current Session) (Session, error)

// SessionStoreConfig configures a SessionStore.
type SessionStoreConfig struct {
	Initial  Session
	Refresh  RefreshFunc
	Clock    clock.Clock
	Debounce time.Duration
}

// SessionStore holds the service session used by outbound calls and notifies
// listeners when it changes. Notifications are debounced so a burst of
// updates results in a single callback carrying the latest session.
type SessionStore struct {
	refresh RefreshFunc
	clock   clock.Clock

	mu        sync.RWMutex
	current   Session
	nextID    int
	listeners map[int]func(Session)

	debouncer *Debouncer
}

// NewSessionStore builds a SessionStore.
func NewSessionStore(cfg SessionStoreConfig) *SessionStore {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	wait := cfg.Debounce
	if wait <= 0 {
		wait = DefaultSessionDebounce
	}

	s := &SessionStore{
		refresh:   cfg.Refresh,
		clock:     clk,
		current:   cfg.Initial,
		listeners: make(map[int]func(Session)),
	}
	s.debouncer = NewDebouncer(clk, wait, s.notify)
	return s
}

// Token implements TokenSource.
func (s *SessionStore) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current.Token == "" {
		return "", ErrNoSession
	}
	return s.current.Token, nil
}

// Refresh implements TokenSource.
func (s *SessionStore) Refresh(ctx context.Context) (string, error) {
	if s.refresh == nil {
		return "", fmt.Errorf("refresh session: %w", ErrNoSession)
	}

	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	next, err := s.refresh(ctx, current)
	if err != nil {
		return "", fmt.Errorf("refresh session: %w", err)
	}
	if next.Token == "" {
		return "", fmt.Errorf("refresh session: %w", ErrNoSession)
	}

	s.Set(next)
	return next.Token, nil
}

// CurrentUser implements SessionProvider for the service identity.
func (s *SessionStore) CurrentUser(ctx context.Context) (*UserCredentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current.User == nil {
		return nil, ErrNoSession
	}
	if !s.current.ExpiresAt.IsZero() && !s.clock.Now().Before(s.current.ExpiresAt) {
		return nil, ErrNoSession
	}
	return s.current.User, nil
}

// Set replaces the session and schedules a change notification.
func (s *SessionStore) Set(session Session) {
	s.mu.Lock()
	s.current = session
	s.mu.Unlock()

	s.debouncer.Trigger()
}

// Clear drops the session (sign-out).
func (s *SessionStore) Clear() {
	s.Set(Session{})
}

// OnSessionChange registers fn and returns a function that removes it.
func (s *SessionStore) OnSessionChange(fn func(Session)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close stops pending notifications.
func (s *SessionStore) Close() {
	s.debouncer.Stop()
}

func (s *SessionStore) notify() {
	s.mu.RLock()
	current := s.current
	fns := make([]func(Session), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(current)
	}
}
