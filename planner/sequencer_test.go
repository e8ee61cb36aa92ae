package planner

import (
	"net/url"
	"testing"
	"time"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/savedroutes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func ptr(f float64) *float64 { return &f }

var (
	jfk = airports.Airport{ID: 1, IataCode: "JFK", Name: "John F Kennedy International Airport", Latitude: ptr(40.6413), Longitude: ptr(-73.7781), DestinationCount: 3}
	lhr = airports.Airport{ID: 2, IataCode: "LHR", Name: "London Heathrow Airport", Latitude: ptr(51.47), Longitude: ptr(-0.4543), DestinationCount: 2}
	cdg = airports.Airport{ID: 3, IataCode: "CDG", Name: "Charles de Gaulle International Airport", Latitude: ptr(49.0128), Longitude: ptr(2.55), DestinationCount: 4}
	zrh = airports.Airport{ID: 4, IataCode: "ZRH", Name: "Zurich Airport", DestinationCount: 0}
)

func activeIndex() airports.Index {
	return airports.NewIndex([]airports.Airport{jfk, lhr, cdg})
}

func allIndex() airports.Index {
	return airports.NewIndex([]airports.Airport{jfk, lhr, cdg, zrh})
}

func newTestSequencer(t *testing.T, rawURL string, opts ...Option) (*Sequencer, *URLNavigator) {
	t.Helper()
	nav, err := NewURLNavigator(rawURL)
	require.NoError(t, err)
	return NewSequencer(nav, opts...), nav
}

func TestSequencer_AddAndSelect(t *testing.T) {
	s, nav := newTestSequencer(t, "/?view=map")
	assert.Equal(t, StateEmpty, s.State())

	s.AddToSequence(jfk)
	assert.Equal(t, StateBuilding, s.State())
	sel, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "JFK", sel.IataCode)

	s.AddToSequence(lhr)
	s.AddToSequence(lhr)
	assert.Equal(t, []string{"JFK", "LHR", "LHR"}, s.Codes(), "consecutive repeats are kept")

	assert.Equal(t, "/?route=JFK,LHR,LHR&view=map", nav.URL())
	assert.Equal(t, 1, nav.Len(), "outbound sync must replace, not push")
}

func TestSequencer_FinalizationGuard(t *testing.T) {
	s, _ := newTestSequencer(t, "/")

	s.FinalizeRoute()
	assert.False(t, s.Finalized())

	s.AddToSequence(jfk)
	s.FinalizeRoute()
	assert.False(t, s.Finalized())
	assert.Equal(t, StateBuilding, s.State())

	s.AddToSequence(lhr)
	s.FinalizeRoute()
	assert.True(t, s.Finalized())
	assert.Equal(t, StateFinalized, s.State())
}

func TestSequencer_AppendAfterFinalizeIsNoop(t *testing.T) {
	s, nav := newTestSequencer(t, "/")
	s.AddToSequence(jfk)
	s.AddToSequence(lhr)
	s.FinalizeRoute()
	before := nav.URL()

	for i := 0; i < 3; i++ {
		s.AddToSequence(cdg)
	}

	assert.Len(t, s.Items(), 2)
	assert.True(t, s.Finalized())
	sel, _ := s.Selected()
	assert.Equal(t, "LHR", sel.IataCode)
	assert.Equal(t, before, nav.URL())
}

func TestSequencer_Reset(t *testing.T) {
	s, nav := newTestSequencer(t, "/?view=map")
	s.AddToSequence(jfk)
	s.AddToSequence(lhr)
	s.FinalizeRoute()

	s.ResetSequence()

	assert.Empty(t, s.Items())
	assert.False(t, s.Finalized())
	_, ok := s.Selected()
	assert.False(t, ok)
	assert.Equal(t, StateEmpty, s.State())
	assert.Equal(t, "/?view=map", nav.URL(), "route param is omitted, others kept")

	s.AddToSequence(cdg)
	assert.Equal(t, []string{"CDG"}, s.Codes())
}

func TestSequencer_LoadRoutePartialResolution(t *testing.T) {
	s, nav := newTestSequencer(t, "/", WithLookup(activeIndex()))
	s.AddToSequence(cdg)

	s.LoadRoute(savedroutes.SavedRoute{Codes: []string{"JFK", "ZZZ", "LHR"}})

	assert.Equal(t, []string{"JFK", "LHR"}, s.Codes())
	sel, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "LHR", sel.IataCode)
	assert.True(t, s.Finalized())
	assert.Equal(t, "/?route=JFK,LHR", nav.URL())
}

func TestSequencer_LoadRouteSingleCodeStillFinalizes(t *testing.T) {
	s, _ := newTestSequencer(t, "/", WithLookup(activeIndex()))
	s.LoadRoute(savedroutes.SavedRoute{Codes: []string{"ZZZ", "CDG"}})

	assert.Equal(t, []string{"CDG"}, s.Codes())
	assert.True(t, s.Finalized())
}

func TestSequencer_LoadRouteNothingResolves(t *testing.T) {
	s, nav := newTestSequencer(t, "/", WithLookup(activeIndex()))
	s.AddToSequence(jfk)

	s.LoadRoute(savedroutes.SavedRoute{Codes: []string{"ZZZ", "YYY"}})

	assert.Equal(t, []string{"JFK"}, s.Codes())
	assert.False(t, s.Finalized())
	assert.Equal(t, "/?route=JFK", nav.URL())
}

func TestSequencer_LoadRouteFallsBackToAllAirports(t *testing.T) {
	s, _ := newTestSequencer(t, "/", WithLookup(activeIndex()), WithFallbackLookup(allIndex()))
	s.LoadRoute(savedroutes.SavedRoute{Codes: []string{"JFK", "ZRH"}})

	assert.Equal(t, []string{"JFK", "ZRH"}, s.Codes())
}

func TestSequencer_LoadRouteOverridesFinalized(t *testing.T) {
	s, _ := newTestSequencer(t, "/", WithLookup(activeIndex()))
	s.AddToSequence(jfk)
	s.AddToSequence(lhr)
	s.FinalizeRoute()

	s.LoadRoute(savedroutes.SavedRoute{Codes: []string{"CDG", "JFK", "CDG"}})
	assert.Equal(t, []string{"CDG", "JFK", "CDG"}, s.Codes())
}

func TestSequencer_RehydrateFromURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		codes     []string
		finalized bool
		wantURL   string
	}{
		{"multi stop finalizes", "/?route=JFK,LHR,CDG", []string{"JFK", "LHR", "CDG"}, true, "/?route=JFK,LHR,CDG"},
		{"single stop builds", "/?route=LHR&view=map", []string{"LHR"}, false, "/?route=LHR&view=map"},
		{"unknown codes dropped", "/?route=JFK,ZZZ", []string{"JFK"}, false, "/?route=JFK"},
		{"nothing resolves leaves url", "/?route=ZZZ,YYY", nil, false, "/?route=ZZZ,YYY"},
		{"no route param", "/?view=map", nil, false, "/?view=map"},
		{"escaped commas", "/?route=JFK%2CLHR", []string{"JFK", "LHR"}, true, "/?route=JFK,LHR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, nav := newTestSequencer(t, tt.url)
			s.OnLookupChanged(activeIndex())

			if tt.codes == nil {
				assert.Empty(t, s.Codes())
				assert.Equal(t, StateEmpty, s.State())
			} else {
				assert.Equal(t, tt.codes, s.Codes())
				sel, ok := s.Selected()
				require.True(t, ok)
				assert.Equal(t, tt.codes[len(tt.codes)-1], sel.IataCode)
			}
			assert.Equal(t, tt.finalized, s.Finalized())
			assert.Equal(t, tt.wantURL, nav.URL())
		})
	}
}

func TestSequencer_RehydrateWaitsForNonEmptyLookup(t *testing.T) {
	s, _ := newTestSequencer(t, "/?route=JFK,LHR")

	s.OnLookupChanged(airports.NewIndex(nil))
	assert.Empty(t, s.Codes())

	s.OnLookupChanged(activeIndex())
	assert.Equal(t, []string{"JFK", "LHR"}, s.Codes())
}

func TestSequencer_RehydrateOnConstruction(t *testing.T) {
	s, _ := newTestSequencer(t, "/?route=CDG,JFK", WithLookup(activeIndex()))
	assert.Equal(t, []string{"CDG", "JFK"}, s.Codes())
	assert.True(t, s.Finalized())
}

func TestSequencer_InboundGuardIdempotence(t *testing.T) {
	s, nav := newTestSequencer(t, "/")
	s.OnLookupChanged(activeIndex())
	s.AddToSequence(jfk)

	nav.Replace(url.Values{RouteParam: {"LHR,CDG"}})
	s.OnLookupChanged(activeIndex())
	s.OnLookupChanged(allIndex())

	assert.Equal(t, []string{"JFK"}, s.Codes())
	assert.True(t, s.Populated())
}

func TestSequencer_NoRehydrateAfterReset(t *testing.T) {
	s, nav := newTestSequencer(t, "/?route=JFK,LHR", WithLookup(activeIndex()))
	s.ResetSequence()

	nav.Replace(url.Values{RouteParam: {"CDG"}})
	s.OnLookupChanged(activeIndex())

	assert.Empty(t, s.Codes())
}

func TestRoute_RoundTrip(t *testing.T) {
	idx := activeIndex()
	for _, codes := range [][]string{
		{"JFK"},
		{"JFK", "LHR"},
		{"CDG", "JFK", "CDG", "LHR"},
	} {
		decoded := DecodeRoute(EncodeRoute(codes), idx)
		assert.Equal(t, codes, codesOf(decoded))
	}
	assert.Empty(t, DecodeRoute("", idx))
}

func TestRoute_RoundTripThroughURL(t *testing.T) {
	s, nav := newTestSequencer(t, "/?lang=en")
	for _, a := range []airports.Airport{cdg, jfk, lhr} {
		s.AddToSequence(a)
	}

	fresh, _ := newTestSequencer(t, nav.URL(), WithLookup(activeIndex()))
	assert.Equal(t, s.Codes(), fresh.Codes())
}

func TestSequencer_KiwiLink(t *testing.T) {
	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestSequencer(t, "/", WithStartDate(start))

	assert.Equal(t, LinkPlaceholder, s.KiwiLink())
	s.AddToSequence(jfk)
	assert.Equal(t, LinkPlaceholder, s.KiwiLink())

	s.AddToSequence(lhr)
	assert.Equal(t,
		"https://www.kiwi.com/en/nomad/results/JFK~2025-06-01_2025-07-01~--/JFK~--~7-20/LHR~--~7-20/",
		s.KiwiLink())

	s.AddToSequence(cdg)
	s.SetStartDate(time.Date(2025, time.December, 15, 18, 30, 0, 0, time.UTC))
	assert.Equal(t,
		"https://www.kiwi.com/en/nomad/results/JFK~2025-12-15_2026-01-14~--/JFK~--~7-20/LHR~--~7-20/CDG~--~7-20/",
		s.KiwiLink())
	assert.Equal(t, "2025-12-15", s.StartDateString())
}

func TestSequencer_KiwiLinkLanguage(t *testing.T) {
	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestSequencer(t, "/", WithStartDate(start), WithLanguage(language.German))
	s.AddToSequence(jfk)
	s.AddToSequence(lhr)

	assert.Contains(t, s.KiwiLink(), "https://www.kiwi.com/de/nomad/results/")
}

func TestSequencer_DefaultStartDateIsToday(t *testing.T) {
	loc := time.FixedZone("UTC+14", 14*3600)
	s, _ := newTestSequencer(t, "/", WithLocation(loc))

	assert.Equal(t, Today(loc), s.StartDate())
	assert.Equal(t, time.Now().In(loc).Format("2006-01-02"), s.StartDateString())
}

func TestSequencer_Summary(t *testing.T) {
	start := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestSequencer(t, "/", WithStartDate(start))
	s.AddToSequence(jfk)
	s.AddToSequence(zrh)
	s.AddToSequence(lhr)
	s.FinalizeRoute()

	sum := s.Summary()
	assert.Equal(t, []string{"JFK", "ZRH", "LHR"}, sum.Codes)
	assert.Equal(t, "finalized", sum.State)
	assert.Equal(t, "LHR", sum.Selected)
	assert.Equal(t, "2025-06-01", sum.StartDate)
	assert.InDelta(t, 5540, sum.DistanceKm, 30, "legs without coordinates are skipped")
}
