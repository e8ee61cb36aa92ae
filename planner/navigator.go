package planner

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Navigator is the page address the route is mirrored into.
type Navigator interface {
	Query() url.Values
	// Replace swaps the query of the current entry without adding history.
	Replace(query url.Values)
}

// URLNavigator is an in-memory address bar with a history stack.
type URLNavigator struct {
	mu      sync.Mutex
	history []url.URL
}

// NewURLNavigator starts a navigator at rawURL.
func NewURLNavigator(rawURL string) (*URLNavigator, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &URLNavigator{history: []url.URL{*u}}, nil
}

// Query returns a copy of the current query.
func (n *URLNavigator) Query() url.Values {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := n.current()
	return u.Query()
}

// Replace overwrites the current entry's query.
func (n *URLNavigator) Replace(query url.Values) {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := n.current()
	u.RawQuery = EncodeQuery(query)
	n.history[len(n.history)-1] = u
}

// Push navigates to rawURL, adding a history entry. Relative references
// resolve against the current entry.
func (n *URLNavigator) Push(rawURL string) error {
	ref, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	cur := n.current()
	n.history = append(n.history, *cur.ResolveReference(ref))
	return nil
}

// URL returns the current address.
func (n *URLNavigator) URL() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	u := n.current()
	return u.String()
}

// Len returns the number of history entries.
func (n *URLNavigator) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.history)
}

func (n *URLNavigator) current() url.URL {
	return n.history[len(n.history)-1]
}

// EncodeQuery is url.Values.Encode with commas kept literal so shared links
// read as ?route=JFK,LHR.
func EncodeQuery(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, val := range v[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(escapeComponent(k))
			b.WriteByte('=')
			b.WriteString(escapeComponent(val))
		}
	}
	return b.String()
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "%2C", ",")
}
