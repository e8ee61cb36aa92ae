package planner

import (
	"time"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/pkg/geo"
	"github.com/gilby125/flight-connections/savedroutes"
	"golang.org/x/text/language"
)

// State is where a sequence sits in its lifecycle.
type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Sequencer holds one session's ordered route and mirrors it into the
// navigator's route parameter. It is not safe for concurrent use; callers
// serialize access (see Registry).
type Sequencer struct {
	nav      Navigator
	lookup   Lookup
	fallback Lookup
	lang     language.Tag
	loc      *time.Location

	items     []airports.Airport
	selected  *airports.Airport
	finalized bool
	startDate time.Time

	// populated is set the first time items become non-empty and never
	// cleared. Inbound rehydration from the URL only runs while it is false.
	populated bool
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLookup sets the primary code lookup (normally the active index).
func WithLookup(l Lookup) Option {
	return func(s *Sequencer) { s.lookup = l }
}

// WithFallbackLookup sets a lookup consulted by LoadRoute when the primary
// one misses (normally the index over all airports).
func WithFallbackLookup(l Lookup) Option {
	return func(s *Sequencer) { s.fallback = l }
}

// WithLanguage sets the booking link language. Defaults to English.
func WithLanguage(tag language.Tag) Option {
	return func(s *Sequencer) { s.lang = tag }
}

// WithLocation sets the viewer's time zone used for the default start date.
func WithLocation(loc *time.Location) Option {
	return func(s *Sequencer) { s.loc = loc }
}

// WithStartDate overrides the default start date of today.
func WithStartDate(d time.Time) Option {
	return func(s *Sequencer) { s.startDate = DateOf(d) }
}

// NewSequencer creates an empty sequence bound to nav. When a non-empty
// lookup is supplied the URL is rehydrated immediately.
func NewSequencer(nav Navigator, opts ...Option) *Sequencer {
	s := &Sequencer{nav: nav, lang: language.English}
	for _, opt := range opts {
		opt(s)
	}
	if s.nav == nil {
		s.nav, _ = NewURLNavigator("/")
	}
	if s.startDate.IsZero() {
		s.startDate = Today(s.loc)
	}
	if s.lookup != nil {
		s.rehydrate()
	}
	return s
}

// AddToSequence appends a and selects it. Ignored once finalized.
func (s *Sequencer) AddToSequence(a airports.Airport) {
	if s.finalized {
		return
	}
	s.items = append(s.items, a)
	s.selected = &a
	s.populated = true
	s.syncOutbound()
}

// ResetSequence clears the route, the selection and the finalized flag.
func (s *Sequencer) ResetSequence() {
	s.items = nil
	s.selected = nil
	s.finalized = false
	s.syncOutbound()
}

// FinalizeRoute closes the route to further appends. Routes shorter than two
// stops cannot be finalized.
func (s *Sequencer) FinalizeRoute() {
	if len(s.items) < 2 {
		return
	}
	s.finalized = true
}

// LoadRoute replaces the sequence with the resolvable codes of saved and
// finalizes it. Unknown codes are dropped; if none resolve nothing changes.
func (s *Sequencer) LoadRoute(saved savedroutes.SavedRoute) {
	resolved := resolve(saved.Codes, s.lookup, s.fallback)
	if len(resolved) == 0 {
		return
	}
	s.setItems(resolved)
	s.finalized = true
	s.syncOutbound()
}

// OnLookupChanged is called when the catalog publishes a new active index.
func (s *Sequencer) OnLookupChanged(l Lookup) {
	s.lookup = l
	s.rehydrate()
}

// SetFallbackLookup replaces the lookup LoadRoute falls back to.
func (s *Sequencer) SetFallbackLookup(l Lookup) {
	s.fallback = l
}

func (s *Sequencer) rehydrate() {
	if s.populated || s.lookup == nil || s.lookup.Len() == 0 {
		return
	}
	raw := s.nav.Query().Get(RouteParam)
	if raw == "" {
		return
	}

	resolved := DecodeRoute(raw, s.lookup)
	if len(resolved) == 0 {
		return
	}
	s.setItems(resolved)
	s.finalized = len(resolved) >= 2
	s.syncOutbound()
}

func (s *Sequencer) setItems(items []airports.Airport) {
	last := items[len(items)-1]
	s.items = items
	s.selected = &last
	s.populated = true
}

func (s *Sequencer) syncOutbound() {
	q := s.nav.Query()
	if len(s.items) == 0 {
		q.Del(RouteParam)
	} else {
		q.Set(RouteParam, EncodeRoute(codesOf(s.items)))
	}
	s.nav.Replace(q)
}

// KiwiLink returns the booking link for the current route, or
// LinkPlaceholder when it has fewer than two stops.
func (s *Sequencer) KiwiLink() string {
	return BookingLink(codesOf(s.items), s.startDate, s.lang)
}

// SetStartDate sets the trip start, dropping any time of day.
func (s *Sequencer) SetStartDate(d time.Time) {
	s.startDate = DateOf(d)
}

// StartDate returns the trip start date.
func (s *Sequencer) StartDate() time.Time {
	return s.startDate
}

// StartDateString returns the start date as YYYY-MM-DD.
func (s *Sequencer) StartDateString() string {
	return s.startDate.Format(dateLayout)
}

// Items returns a copy of the route.
func (s *Sequencer) Items() []airports.Airport {
	return append([]airports.Airport(nil), s.items...)
}

// Codes returns the carrier codes of the route in order.
func (s *Sequencer) Codes() []string {
	return codesOf(s.items)
}

// Selected returns the most recently added or loaded airport.
func (s *Sequencer) Selected() (airports.Airport, bool) {
	if s.selected == nil {
		return airports.Airport{}, false
	}
	return *s.selected, true
}

// Finalized reports whether appends are closed.
func (s *Sequencer) Finalized() bool {
	return s.finalized
}

// Populated reports whether the route has ever held an airport.
func (s *Sequencer) Populated() bool {
	return s.populated
}

// State derives the lifecycle state from the route.
func (s *Sequencer) State() State {
	switch {
	case s.finalized:
		return StateFinalized
	case len(s.items) > 0:
		return StateBuilding
	default:
		return StateEmpty
	}
}

// Summary is a read-only snapshot of a sequence.
type Summary struct {
	Codes      []string `json:"codes"`
	State      string   `json:"state"`
	Selected   string   `json:"selected,omitempty"`
	Finalized  bool     `json:"finalized"`
	StartDate  string   `json:"start_date"`
	KiwiLink   string   `json:"kiwi_link"`
	DistanceKm float64  `json:"distance_km"`
}

// Summary snapshots the sequence. DistanceKm sums great-circle legs between
// consecutive stops with known coordinates.
func (s *Sequencer) Summary() Summary {
	sum := Summary{
		Codes:      s.Codes(),
		State:      s.State().String(),
		Finalized:  s.finalized,
		StartDate:  s.StartDateString(),
		KiwiLink:   s.KiwiLink(),
		DistanceKm: routeDistanceKm(s.items),
	}
	if sel, ok := s.Selected(); ok {
		sum.Selected = sel.IataCode
	}
	return sum
}

func routeDistanceKm(items []airports.Airport) float64 {
	points := make([]geo.Coordinates, 0, len(items))
	for _, a := range items {
		if !a.HasCoordinates() {
			continue
		}
		points = append(points, geo.Coordinates{Lat: *a.Latitude, Lon: *a.Longitude})
	}
	return geo.PathDistanceKm(points)
}
