package airports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gilby125/flight-connections/pkg/cache"
	"github.com/gilby125/flight-connections/pkg/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// FileSource reads the dataset from a JSON array on disk.
type FileSource struct {
	Path string
}

// Airports decodes the file at Path.
func (s FileSource) Airports(ctx context.Context) ([]Airport, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open airport file: %w", err)
	}
	defer f.Close()

	return decodeAirports(f)
}

func decodeAirports(r io.Reader) ([]Airport, error) {
	var out []Airport
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode airports: %w", err)
	}
	return out, nil
}

// HTTPSource fetches the dataset from a JSON feed.
type HTTPSource struct {
	URL    string
	client *retryablehttp.Client
}

// NewHTTPSource creates a feed reader for url.
func NewHTTPSource(url string, opts retryhttp.Options) *HTTPSource {
	return &HTTPSource{URL: url, client: retryhttp.New(opts)}
}

// Airports performs a single GET of the feed.
func (s *HTTPSource) Airports(ctx context.Context) ([]Airport, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build airport feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch airport feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch airport feed: unexpected status %d", resp.StatusCode)
	}
	return decodeAirports(resp.Body)
}

var errEmptyFeed = errors.New("empty airport feed")

// CachedSource keeps the decoded dataset in the shared cache so restarts do
// not refetch the feed. Empty results are never cached.
type CachedSource struct {
	Source Source
	Cache  *cache.CacheManager
	TTL    time.Duration
}

// Airports serves from cache, falling back to Source.
func (s *CachedSource) Airports(ctx context.Context) ([]Airport, error) {
	var out []Airport
	err := s.Cache.GetOrLoad(ctx, cache.CatalogKey(), s.TTL, &out, func() (interface{}, error) {
		data, err := s.Source.Airports(ctx)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errEmptyFeed
		}
		return data, nil
	})
	if errors.Is(err, errEmptyFeed) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
