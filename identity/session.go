// Package identity tracks who the current user is.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gilby125/flight-connections/pkg/logger"
)

var (
	// ErrNoProvider is returned by EnsureAuthenticated when no sign-in
	// provider is configured.
	ErrNoProvider = errors.New("identity provider not configured")
	// ErrAnonymous is returned when a provider yields an anonymous identity.
	ErrAnonymous = errors.New("anonymous identities are not accepted")
)

// User is an authenticated identity.
type User struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Provider    string `json:"provider,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// Provider signs a user in.
type Provider interface {
	SignIn(ctx context.Context) (*User, error)
}

// Session holds the current identity. The first SetUser marks it ready.
type Session struct {
	provider Provider
	log      *logger.Logger

	mu        sync.RWMutex
	user      *User
	lastErr   error
	ready     chan struct{}
	readyOnce sync.Once

	subMu   sync.Mutex
	subs    map[int]func(*User)
	nextSub int
}

// NewSession creates a session that is not ready until the first SetUser.
func NewSession(provider Provider, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Default()
	}
	return &Session{
		provider: provider,
		log:      log.Component("identity"),
		ready:    make(chan struct{}),
		subs:     make(map[int]func(*User)),
	}
}

// SetUser records an auth state change. Anonymous identities are signed out
// and recorded as nil.
func (s *Session) SetUser(u *User) {
	if u != nil && u.IsAnonymous {
		s.log.Warn("Anonymous user detected, signing out", "uid", u.UID)
		u = nil
	}

	var stored *User
	if u != nil {
		cp := *u
		stored = &cp
	}

	s.mu.Lock()
	s.user = stored
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	s.notify(stored)
}

// CurrentUser returns the signed in user, or nil.
func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	cp := *s.user
	return &cp
}

// Ready reports whether the initial auth state is known.
func (s *Session) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the initial auth state is known and returns it.
func (s *Session) WaitReady(ctx context.Context) (*User, error) {
	select {
	case <-s.ready:
		return s.CurrentUser(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EnsureAuthenticated returns the current user, signing in through the
// provider when there is none.
func (s *Session) EnsureAuthenticated(ctx context.Context) (*User, error) {
	if u := s.CurrentUser(); u != nil {
		return u, nil
	}
	if s.provider == nil {
		return nil, ErrNoProvider
	}

	u, err := s.provider.SignIn(ctx)
	if err == nil && u == nil {
		err = errors.New("provider returned no user")
	}
	if err == nil && u.IsAnonymous {
		err = ErrAnonymous
	}
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.log.Error(err, "Sign-in failed")
		return nil, fmt.Errorf("sign in: %w", err)
	}

	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	s.SetUser(u)
	return s.CurrentUser(), nil
}

// LastError returns the most recent sign-in failure.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// OnChange registers fn for every auth state change.
func (s *Session) OnChange(fn func(*User)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify(u *User) {
	s.subMu.Lock()
	fns := make([]func(*User), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		if u == nil {
			fn(nil)
			continue
		}
		cp := *u
		fn(&cp)
	}
}
