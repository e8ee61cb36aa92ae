package airports

import (
	"sort"
	"strings"

	anyascii "github.com/anyascii/go"
)

const defaultSearchLimit = 20

// Search ranks airports matching query by carrier code, ident, name or
// municipality. Matching ignores case and diacritics. Code matches come first.
func (c *Catalog) Search(query string, limit int, activeOnly bool) []Airport {
	q := fold(query)
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	c.mu.RLock()
	pool := c.all
	if activeOnly {
		pool = c.active
	}
	type hit struct {
		airport Airport
		rank    int
	}
	var hits []hit
	for _, a := range pool {
		if rank, ok := matchRank(a, q); ok {
			hits = append(hits, hit{airport: a, rank: rank})
		}
	}
	c.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		return hits[i].airport.DestinationCount > hits[j].airport.DestinationCount
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Airport, len(hits))
	for i, h := range hits {
		out[i] = h.airport
	}
	return out
}

func matchRank(a Airport, q string) (int, bool) {
	code := fold(a.IataCode)
	switch {
	case code != "" && code == q:
		return 0, true
	case code != "" && strings.HasPrefix(code, q):
		return 1, true
	case fold(a.Ident) == q:
		return 2, true
	case strings.Contains(fold(a.Name), q), strings.Contains(fold(a.Municipality), q):
		return 3, true
	}
	return 0, false
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(anyascii.Transliterate(s)))
}
