package planner

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("planner session not found")

// Session is one planning session: a sequencer and the address it mirrors to.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu  sync.Mutex
	seq *Sequencer
	nav *URLNavigator

	lastUsed atomic.Int64 // unix nanos of the last Create or Get
}

// LastUsed is when the session was last fetched from its registry.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Session) touch(t time.Time) {
	s.lastUsed.Store(t.UnixNano())
}

// Do runs fn with exclusive access to the session's sequencer.
func (s *Session) Do(fn func(seq *Sequencer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.seq)
}

// View is a snapshot of a session for transports.
type View struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	Summary
}

// View snapshots the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{ID: s.ID, URL: s.nav.URL(), Summary: s.seq.Summary()}
}

// Registry tracks live sessions and keeps their lookups current with the
// catalog.
type Registry struct {
	log *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	active   Lookup
	all      Lookup

	newID func() string
	now   func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Default()
	}
	return &Registry{
		log:      log.Component("planner"),
		sessions: make(map[string]*Session),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Attach wires the registry to catalog updates and picks up the current
// indices. The returned func detaches it.
func (r *Registry) Attach(catalog *airports.Catalog) (cancel func()) {
	cancel = catalog.Subscribe(func(active airports.Index) {
		r.SetLookups(active, catalog.ByIataAll())
	})
	r.SetLookups(catalog.ByIataActive(), catalog.ByIataAll())
	return cancel
}

// SetLookups publishes new indices to every session. Sessions that have not
// been populated yet rehydrate from their URL.
func (r *Registry) SetLookups(active, all Lookup) {
	r.mu.Lock()
	r.active = active
	r.all = all
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Do(func(seq *Sequencer) {
			seq.SetFallbackLookup(all)
			seq.OnLookupChanged(active)
		})
	}
	r.log.Debug("Lookups published", "sessions", len(sessions), "active_codes", lenOf(active))
}

// CreateOptions seed a new session.
type CreateOptions struct {
	// URL is the page address the session starts on; it may carry a route.
	URL       string
	StartDate *time.Time
	Location  *time.Location
	// Language localizes booking links; the zero tag keeps the default.
	Language language.Tag
}

// Create starts a session. A route in opts.URL is rehydrated as soon as a
// non-empty lookup is available.
func (r *Registry) Create(opts CreateOptions) (*Session, error) {
	rawURL := opts.URL
	if rawURL == "" {
		rawURL = "/"
	}
	nav, err := NewURLNavigator(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid session url: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seqOpts := []Option{WithLocation(opts.Location)}
	if opts.Language != language.Und {
		seqOpts = append(seqOpts, WithLanguage(opts.Language))
	}
	if opts.StartDate != nil {
		seqOpts = append(seqOpts, WithStartDate(*opts.StartDate))
	}
	if r.all != nil {
		seqOpts = append(seqOpts, WithFallbackLookup(r.all))
	}
	if r.active != nil {
		seqOpts = append(seqOpts, WithLookup(r.active))
	}

	s := &Session{
		ID:        r.newID(),
		CreatedAt: r.now(),
		nav:       nav,
		seq:       NewSequencer(nav, seqOpts...),
	}
	s.touch(s.CreatedAt)
	r.sessions[s.ID] = s
	r.log.Info("Planner session created", "session_id", s.ID, "state", s.seq.State().String())
	return s, nil
}

// Get returns the session with id and marks it as used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Expire drops sessions not used for longer than maxIdle and returns how
// many were removed. A non-positive maxIdle keeps everything.
func (r *Registry) Expire(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if removed > 0 {
		r.log.Info("Expired idle planner sessions", "removed", removed, "remaining", remaining)
	}
	return removed
}

// Delete drops the session with id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func lenOf(l Lookup) int {
	if l == nil {
		return 0
	}
	return l.Len()
}
