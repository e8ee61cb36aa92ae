package profile

import (
	"context"
	"sync"

	"github.com/gilby125/flight-connections/identity"
	"github.com/gilby125/flight-connections/pkg/logger"
)

// Syncer keeps the profile of the current identity up to date. It holds at
// most one subscription.
type Syncer struct {
	store Store
	log   *logger.Logger

	mu      sync.Mutex
	gen     int
	sub     Subscription
	profile *Profile
	loading bool
	closed  bool
}

// NewSyncer creates a syncer with no identity.
func NewSyncer(store Store, log *logger.Logger) *Syncer {
	if log == nil {
		log = logger.Default()
	}
	return &Syncer{store: store, log: log.Component("profile")}
}

// Attach follows session: the current user now, then every change.
func (s *Syncer) Attach(ctx context.Context, session *identity.Session) (cancel func()) {
	stop := session.OnChange(func(u *identity.User) { s.Follow(ctx, u) })
	s.Follow(ctx, session.CurrentUser())
	return stop
}

// Follow switches to u. The previous subscription is closed before the new
// one opens. A nil or anonymous identity clears the profile.
func (s *Syncer) Follow(ctx context.Context, u *identity.User) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	prev := s.sub
	s.sub = nil
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.log.Warn("Closing profile subscription failed", "error", err)
		}
	}

	if u == nil || u.IsAnonymous {
		s.mu.Lock()
		if gen == s.gen {
			s.profile = nil
			s.loading = false
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.loading = true
	s.mu.Unlock()

	uid := u.UID
	sub, err := s.store.Subscribe(ctx, uid, func(p *Profile, err error) {
		s.deliver(gen, uid, p, err)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Error(err, "Error subscribing to user document", "uid", uid)
		if gen == s.gen {
			s.loading = false
		}
		return
	}
	if gen != s.gen || s.closed {
		go sub.Close()
		return
	}
	s.sub = sub
}

func (s *Syncer) deliver(gen int, uid string, p *Profile, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed {
		return
	}
	s.loading = false
	if err != nil {
		s.log.Error(err, "Error fetching user document", "uid", uid)
		return
	}
	if p == nil {
		s.log.Warn("User document does not exist", "uid", uid)
	} else {
		s.log.Debug("User profile loaded", "uid", uid, "has_photo", p.PhotoURL != "")
	}
	s.profile = p.Clone()
}

// Profile returns a copy of the current document, or nil.
func (s *Syncer) Profile() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Clone()
}

// Loading reports whether the first snapshot for the current identity is
// still pending.
func (s *Syncer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Close tears down the subscription. Later updates are ignored.
func (s *Syncer) Close() error {
	s.mu.Lock()
	s.closed = true
	s.gen++
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}
