// Package planner builds multi-stop flight routes and keeps them mirrored in a
// shareable URL.
package planner

import (
	"strings"

	"github.com/gilby125/flight-connections/airports"
)

// RouteParam is the query parameter carrying the comma-joined carrier codes.
const RouteParam = "route"

// Lookup resolves carrier codes. airports.Index satisfies it.
type Lookup interface {
	Get(code string) (airports.Airport, bool)
	Len() int
}

// EncodeRoute joins codes with commas. Codes are alphanumeric so no escaping
// is applied.
func EncodeRoute(codes []string) string {
	return strings.Join(codes, ",")
}

// DecodeRoute splits raw on commas and resolves each code against lookup,
// dropping codes that do not resolve. Order is preserved.
func DecodeRoute(raw string, lookup Lookup) []airports.Airport {
	if raw == "" {
		return nil
	}
	return resolve(strings.Split(raw, ","), lookup, nil)
}

func resolve(codes []string, primary, fallback Lookup) []airports.Airport {
	var out []airports.Airport
	for _, code := range codes {
		if a, ok := lookupCode(code, primary, fallback); ok {
			out = append(out, a)
		}
	}
	return out
}

func lookupCode(code string, primary, fallback Lookup) (airports.Airport, bool) {
	if primary != nil {
		if a, ok := primary.Get(code); ok {
			return a, true
		}
	}
	if fallback != nil {
		return fallback.Get(code)
	}
	return airports.Airport{}, false
}

func codesOf(items []airports.Airport) []string {
	codes := make([]string, len(items))
	for i, a := range items {
		codes[i] = a.IataCode
	}
	return codes
}
