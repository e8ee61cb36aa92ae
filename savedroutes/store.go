// Package savedroutes keeps the user's named multi-stop routes durable.
package savedroutes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/google/uuid"
)

// Namespace is the key the collection is stored under.
const Namespace = "airport-map-saved-routes"

// timestampLayout matches ISO-8601 in UTC with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// SavedRoute is an immutable saved entry. Name is derived from the first and
// last codes and never edited.
type SavedRoute struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Codes []string `json:"codes"`
	Date  string   `json:"date"`
}

// Backend persists the whole collection.
type Backend interface {
	Load(ctx context.Context) ([]SavedRoute, error)
	Save(ctx context.Context, routes []SavedRoute) error
}

// Store is the saved route collection, written through to its backend on
// every mutation.
type Store struct {
	backend Backend
	log     *logger.Logger

	mu     sync.RWMutex
	routes []SavedRoute

	newID func() string
	now   func() time.Time
}

// NewStore reads the collection from backend. Unreadable data is logged and
// the store starts empty.
func NewStore(ctx context.Context, backend Backend, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	s := &Store{
		backend: backend,
		log:     log.Component("savedroutes"),
		newID:   uuid.NewString,
		now:     time.Now,
	}

	routes, err := backend.Load(ctx)
	if err != nil {
		s.log.Warn("Saved routes unreadable, starting empty", "error", err)
		routes = nil
	}
	s.routes = routes
	s.log.Info("Saved routes loaded", "count", len(routes))
	return s
}

// SaveRoute appends a new entry for codes. It returns false without mutating
// when fewer than two codes are given or an entry with the same ordered codes
// exists. A backend failure undoes the append and is returned.
func (s *Store) SaveRoute(ctx context.Context, codes []string) (bool, error) {
	if len(codes) < 2 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.routes {
		if sameCodes(r.Codes, codes) {
			return false, nil
		}
	}

	entry := SavedRoute{
		ID:    s.newID(),
		Name:  fmt.Sprintf("%s → %s", codes[0], codes[len(codes)-1]),
		Codes: append([]string(nil), codes...),
		Date:  s.now().UTC().Format(timestampLayout),
	}
	next := append(append([]SavedRoute(nil), s.routes...), entry)
	if err := s.backend.Save(ctx, next); err != nil {
		return false, fmt.Errorf("persist saved route: %w", err)
	}
	s.routes = next
	s.log.Debug("Route saved", "id", entry.ID, "name", entry.Name)
	return true, nil
}

// DeleteRoute removes the entry with id. Unknown ids are ignored.
func (s *Store) DeleteRoute(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]SavedRoute, 0, len(s.routes))
	for _, r := range s.routes {
		if r.ID != id {
			next = append(next, r)
		}
	}
	if len(next) == len(s.routes) {
		return nil
	}
	if err := s.backend.Save(ctx, next); err != nil {
		return fmt.Errorf("persist route deletion: %w", err)
	}
	s.routes = next
	return nil
}

// Routes returns the entries in insertion order.
func (s *Store) Routes() []SavedRoute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SavedRoute, len(s.routes))
	for i, r := range s.routes {
		r.Codes = append([]string(nil), r.Codes...)
		out[i] = r
	}
	return out
}

// Get returns the entry with id.
func (s *Store) Get(id string) (SavedRoute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.routes {
		if r.ID == id {
			r.Codes = append([]string(nil), r.Codes...)
			return r, true
		}
	}
	return SavedRoute{}, false
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.routes)
}

func sameCodes(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
