package airports

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gilby125/flight-connections/pkg/logger"
)

// Catalog owns the loaded dataset and every view derived from it. Views are
// rebuilt eagerly on each Set in a fixed order: active filter, active index,
// full index, counters, then subscribers.
type Catalog struct {
	source Source
	log    *logger.Logger

	mu       sync.RWMutex
	all      []Airport
	active   []Airport
	byActive Index
	byAll    Index
	stats    Stats
	loaded   bool

	subMu   sync.Mutex
	subs    map[int]func(Index)
	nextSub int
}

// NewCatalog creates an empty catalog reading from source.
func NewCatalog(source Source, log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.Default()
	}
	return &Catalog{
		source:   source,
		log:      log.Component("airports"),
		byActive: NewIndex(nil),
		byAll:    NewIndex(nil),
		subs:     make(map[int]func(Index)),
	}
}

// Load fetches the dataset once. A failed fetch leaves the catalog as it was
// (empty on first load); the error is returned for reporting only.
func (c *Catalog) Load(ctx context.Context) error {
	if c.source == nil {
		return fmt.Errorf("load airports: no source configured")
	}

	data, err := c.source.Airports(ctx)
	if err != nil {
		c.log.Error(err, "Airport catalog unavailable")
		return fmt.Errorf("load airports: %w", err)
	}
	if len(data) == 0 {
		c.log.Warn("Airport catalog is empty")
	}

	c.Set(data)
	c.log.Info("Airport catalog loaded", "airports", len(data), "active", c.Stats().TotalAirports)
	return nil
}

// Set replaces the dataset and recomputes every derived view.
func (c *Catalog) Set(data []Airport) {
	all := make([]Airport, len(data))
	copy(all, data)

	active := make([]Airport, 0, len(all))
	for _, a := range all {
		if a.Active() {
			active = append(active, a)
		}
	}
	byActive := NewIndex(active)
	byAll := NewIndex(all)

	stats := Stats{TotalAirports: len(active)}
	for _, a := range active {
		stats.TotalDestinations += a.DestinationCount
	}

	c.mu.Lock()
	c.all = all
	c.active = active
	c.byActive = byActive
	c.byAll = byAll
	c.stats = stats
	c.loaded = true
	c.mu.Unlock()

	c.notify(byActive)
}

// Loaded reports whether Set has run at least once.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Airports returns the full dataset.
func (c *Catalog) Airports() []Airport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Airport(nil), c.all...)
}

// ActiveAirports returns the airports with at least one destination.
func (c *Catalog) ActiveAirports() []Airport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Airport(nil), c.active...)
}

// ByIataActive returns the carrier code index over active airports.
func (c *Catalog) ByIataActive() Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byActive
}

// ByIataAll returns the carrier code index over the whole dataset.
func (c *Catalog) ByIataAll() Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byAll
}

// TotalAirports is the number of active airports.
func (c *Catalog) TotalAirports() int {
	return c.Stats().TotalAirports
}

// TotalDestinationsSum adds up destination counts over active airports.
func (c *Catalog) TotalDestinationsSum() int {
	return c.Stats().TotalDestinations
}

// Stats returns both display counters.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Subscribe registers fn to receive the active index after every
// recomputation. The returned func removes the subscription.
func (c *Catalog) Subscribe(fn func(Index)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Catalog) notify(idx Index) {
	c.subMu.Lock()
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Index), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, c.subs[id])
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(idx)
	}
}

