// Package climate computes monthly climate normals for a location from the
// Open-Meteo historical archive.
package climate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gilby125/flight-connections/pkg/cache"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gilby125/flight-connections/pkg/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the Open-Meteo archive endpoint.
const DefaultBaseURL = "https://archive-api.open-meteo.com/v1/archive"

const (
	historyYears = 5
	dailyFields  = "temperature_2m_max,temperature_2m_min,precipitation_sum"
	daysPerMonth = 30
)

// ErrInvalidResponse is returned when the archive answers without a daily
// time series.
var ErrInvalidResponse = errors.New("invalid response from weather API")

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthlyClimate holds the normals for one calendar month. Temperatures are
// in °C, rainfall in mm.
type MonthlyClimate struct {
	Month    string  `json:"month"`
	AvgHigh  float64 `json:"avg_high"`
	AvgLow   float64 `json:"avg_low"`
	Rainfall int     `json:"rainfall"`
}

type archiveResponse struct {
	Daily *struct {
		Time             []string   `json:"time"`
		Temperature2mMax []*float64 `json:"temperature_2m_max"`
		Temperature2mMin []*float64 `json:"temperature_2m_min"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// Options configures a Client.
type Options struct {
	BaseURL string
	HTTP    retryhttp.Options
	// Cache, when set, shares results across processes.
	Cache    *cache.CacheManager
	CacheTTL time.Duration
	Logger   *logger.Logger
}

// Client fetches and caches monthly normals.
type Client struct {
	baseURL  string
	http     *retryablehttp.Client
	shared   *cache.CacheManager
	cacheTTL time.Duration
	log      *logger.Logger
	local    sync.Map
	now      func() time.Time
}

// NewClient creates a client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = cache.LongTTL
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Client{
		baseURL:  opts.BaseURL,
		http:     retryhttp.New(opts.HTTP),
		shared:   opts.Cache,
		cacheTTL: opts.CacheTTL,
		log:      opts.Logger.Component("climate"),
		now:      time.Now,
	}
}

// Fetch returns twelve months of normals, January first.
func (c *Client) Fetch(ctx context.Context, lat, lng float64) ([]MonthlyClimate, error) {
	key := cache.ClimateKey(lat, lng)

	if v, ok := c.local.Load(key); ok {
		return clone(v.([]MonthlyClimate)), nil
	}

	if c.shared != nil {
		var months []MonthlyClimate
		err := c.shared.GetJSON(ctx, key, &months)
		if err == nil && len(months) == len(monthNames) {
			c.local.Store(key, months)
			return clone(months), nil
		}
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.log.Warn("Shared climate cache read failed", "key", key, "error", err)
		}
	}

	months, err := c.fetch(ctx, lat, lng)
	if err != nil {
		return nil, err
	}

	c.local.Store(key, months)
	if c.shared != nil {
		if err := c.shared.SetJSON(ctx, key, months, c.cacheTTL); err != nil {
			c.log.Warn("Shared climate cache write failed", "key", key, "error", err)
		}
	}
	return clone(months), nil
}

func (c *Client) fetch(ctx context.Context, lat, lng float64) ([]MonthlyClimate, error) {
	endYear := c.now().Year() - 1
	startYear := endYear - (historyYears - 1)

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("start_date", fmt.Sprintf("%d-01-01", startYear))
	q.Set("end_date", fmt.Sprintf("%d-12-31", endYear))
	q.Set("daily", dailyFields)
	q.Set("timezone", "auto")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build climate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch climate data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch climate data: unexpected status %d", resp.StatusCode)
	}

	var body archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode climate data: %w", err)
	}
	if body.Daily == nil || body.Daily.Time == nil {
		return nil, ErrInvalidResponse
	}

	c.log.Debug("Fetched climate archive", "lat", lat, "lng", lng, "days", len(body.Daily.Time))
	return monthlyAverages(body), nil
}

// ClearCache drops the in-process cache.
func (c *Client) ClearCache() {
	c.local.Range(func(k, _ interface{}) bool {
		c.local.Delete(k)
		return true
	})
}

// PurgeShared drops every climate entry from the shared cache. Other
// processes keep their in-process copies until their own ClearCache.
func (c *Client) PurgeShared(ctx context.Context) error {
	if c.shared == nil {
		return nil
	}
	if err := c.shared.DeletePrefix(ctx, cache.ClimatePrefix); err != nil {
		return fmt.Errorf("purge shared climate cache: %w", err)
	}
	return nil
}

func monthlyAverages(body archiveResponse) []MonthlyClimate {
	type sums struct {
		high, low, rain    float64
		nHigh, nLow, nRain int
	}
	var acc [12]sums

	d := body.Daily
	for i, day := range d.Time {
		if len(day) < len("2006-01-02") {
			continue
		}
		t, err := time.Parse("2006-01-02", day[:10])
		if err != nil {
			continue
		}
		m := &acc[t.Month()-1]
		if v := sample(d.Temperature2mMax, i); v != nil {
			m.high += *v
			m.nHigh++
		}
		if v := sample(d.Temperature2mMin, i); v != nil {
			m.low += *v
			m.nLow++
		}
		if v := sample(d.PrecipitationSum, i); v != nil {
			m.rain += *v
			m.nRain++
		}
	}

	out := make([]MonthlyClimate, len(monthNames))
	for i, m := range acc {
		out[i] = MonthlyClimate{
			Month:    monthNames[i],
			AvgHigh:  roundTenth(mean(m.high, m.nHigh)),
			AvgLow:   roundTenth(mean(m.low, m.nLow)),
			Rainfall: int(roundHalfUp(mean(m.rain, m.nRain) * daysPerMonth)),
		}
	}
	return out
}

func sample(series []*float64, i int) *float64 {
	if i >= len(series) {
		return nil
	}
	return series[i]
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// roundHalfUp rounds halves towards positive infinity.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

func roundTenth(x float64) float64 {
	return roundHalfUp(x*10) / 10
}

func clone(in []MonthlyClimate) []MonthlyClimate {
	return append([]MonthlyClimate(nil), in...)
}
