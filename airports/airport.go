// Package airports holds the airport dataset and the code lookups derived from it.
package airports

import (
	"context"
	"sort"
)

// Airport is one record of the airport dataset. IataCode is empty when the
// airport has no carrier code and can therefore never be joined to a route.
type Airport struct {
	ID               int64    `json:"id"`
	Ident            string   `json:"ident"`
	Type             string   `json:"type"`
	Name             string   `json:"name"`
	Latitude         *float64 `json:"latitude_deg"`
	Longitude        *float64 `json:"longitude_deg"`
	ElevationFt      *int     `json:"elevation_ft"`
	Continent        string   `json:"continent"`
	ISOCountry       string   `json:"iso_country"`
	ISORegion        string   `json:"iso_region"`
	Municipality     string   `json:"municipality"`
	ScheduledService string   `json:"scheduled_service"`
	GPSCode          string   `json:"gps_code"`
	IataCode         string   `json:"iata_code"`
	LocalCode        string   `json:"local_code"`
	HomeLink         string   `json:"home_link"`
	WikipediaLink    string   `json:"wikipedia_link"`
	Keywords         string   `json:"keywords"`
	Destinations     []string `json:"destinations"`
	DestinationCount int      `json:"destination_count"`
}

// Active reports whether any destination is reachable from the airport.
func (a Airport) Active() bool {
	return a.DestinationCount > 0
}

// HasCoordinates reports whether both latitude and longitude are known.
func (a Airport) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// Source is the bulk feed the catalog is read from.
type Source interface {
	Airports(ctx context.Context) ([]Airport, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Airport, error)

// Airports calls f.
func (f SourceFunc) Airports(ctx context.Context) ([]Airport, error) {
	return f(ctx)
}

// Index maps carrier codes to airports. It is never mutated after
// construction, so it can be shared freely.
type Index struct {
	byCode map[string]Airport
}

// NewIndex builds an index over airports, skipping those without a carrier
// code. A later airport with the same code replaces an earlier one.
func NewIndex(airports []Airport) Index {
	byCode := make(map[string]Airport, len(airports))
	for _, a := range airports {
		if a.IataCode == "" {
			continue
		}
		byCode[a.IataCode] = a
	}
	return Index{byCode: byCode}
}

// Get resolves a carrier code. Codes are case-sensitive.
func (i Index) Get(code string) (Airport, bool) {
	a, ok := i.byCode[code]
	return a, ok
}

// Len returns the number of codes in the index.
func (i Index) Len() int {
	return len(i.byCode)
}

// Codes returns the indexed codes in sorted order.
func (i Index) Codes() []string {
	codes := make([]string, 0, len(i.byCode))
	for code := range i.byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Stats are the display counters computed over active airports.
type Stats struct {
	TotalAirports     int `json:"total_airports"`
	TotalDestinations int `json:"total_destinations"`
}
