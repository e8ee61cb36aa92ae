package planner

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gilby125/flight-connections/savedroutes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	r := NewRegistry(logger.Discard())
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	}
	return r
}

func savedRoute(codes ...string) savedroutes.SavedRoute {
	return savedroutes.SavedRoute{ID: "saved", Codes: codes}
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := newTestRegistry()

	s, err := r.Create(CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "session-1", s.ID)
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, r.Delete(s.ID))
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, r.Delete(s.ID), ErrSessionNotFound)
}

func TestRegistry_CreateRejectsBadURL(t *testing.T) {
	_, err := newTestRegistry().Create(CreateOptions{URL: "http://[::1"})
	assert.Error(t, err)
}

func TestRegistry_RehydratesWhenCatalogLoads(t *testing.T) {
	catalog := airports.NewCatalog(nil, logger.Discard())
	r := newTestRegistry()
	cancel := r.Attach(catalog)
	defer cancel()

	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	s, err := r.Create(CreateOptions{URL: "/?route=JFK,LHR", StartDate: &start})
	require.NoError(t, err)
	assert.Empty(t, s.View().Codes, "catalog not loaded yet")

	catalog.Set([]airports.Airport{jfk, lhr, cdg, zrh})

	view := s.View()
	assert.Equal(t, []string{"JFK", "LHR"}, view.Codes)
	assert.Equal(t, "finalized", view.State)
	assert.Equal(t, "/?route=JFK,LHR", view.URL)
	assert.Contains(t, view.KiwiLink, "JFK~2025-06-01_2025-07-01~--")
}

func TestRegistry_NewSessionsUseCurrentLookups(t *testing.T) {
	catalog := airports.NewCatalog(nil, logger.Discard())
	catalog.Set([]airports.Airport{jfk, lhr, zrh})
	r := newTestRegistry()
	defer r.Attach(catalog)()

	s, err := r.Create(CreateOptions{URL: "/?route=LHR"})
	require.NoError(t, err)
	assert.Equal(t, "building", s.View().State)

	s.Do(func(seq *Sequencer) {
		seq.ResetSequence()
		seq.LoadRoute(savedRoute("JFK", "ZRH"))
	})
	assert.Equal(t, []string{"JFK", "ZRH"}, s.View().Codes, "inactive airports resolve through the fallback index")
}

func TestRegistry_ConcurrentSessionAccess(t *testing.T) {
	r := newTestRegistry()
	r.SetLookups(activeIndex(), allIndex())
	s, err := r.Create(CreateOptions{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Do(func(seq *Sequencer) { seq.AddToSequence(jfk) })
			_ = s.View()
		}()
	}
	wg.Wait()

	assert.Len(t, s.View().Codes, 20)
}

func TestRegistry_ExpireIdleSessions(t *testing.T) {
	r := newTestRegistry()
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	stale, err := r.Create(CreateOptions{})
	require.NoError(t, err)
	kept, err := r.Create(CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, now, stale.LastUsed().UTC())

	now = now.Add(90 * time.Minute)
	_, err = r.Get(kept.ID)
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	assert.Equal(t, 0, r.Expire(0))
	assert.Equal(t, 1, r.Expire(2*time.Hour))
	assert.Equal(t, 1, r.Len())

	_, err = r.Get(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(kept.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, r.Expire(2*time.Hour), "Get refreshed the surviving session")
}
