package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gilby125/flight-connections/pkg/cache"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gin-gonic/gin"
)

// CacheConfig configures ResponseCache.
type CacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
	SkipPaths []string
	Logger    *logger.Logger
}

// CachedResponse is a stored JSON response.
type CachedResponse struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"body"`
	ContentType string            `json:"content_type"`
	CachedAt    time.Time         `json:"cached_at"`
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

var cachedHeaders = map[string]bool{
	"Content-Encoding": true,
	"Cache-Control":    true,
	"Etag":             true,
	"Last-Modified":    true,
}

// ResponseCache serves repeated anonymous GETs of JSON endpoints from the
// shared cache. Only 2xx JSON responses are stored, and never those marked
// Cache-Control: no-store.
func ResponseCache(cm *cache.CacheManager, cfg CacheConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.Component("response_cache")

	return func(c *gin.Context) {
		if !cacheable(c, cfg.SkipPaths) {
			c.Next()
			return
		}

		key := responseKey(cfg.KeyPrefix, c.Request)
		ctx := c.Request.Context()

		var hit CachedResponse
		err := cm.GetJSON(ctx, key, &hit)
		if err == nil {
			for k, v := range hit.Headers {
				c.Header(k, v)
			}
			c.Header("X-Cache", "HIT")
			c.Data(hit.StatusCode, hit.ContentType, hit.Body)
			c.Abort()
			return
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Error(err, "Cache get error", "cache_key", key)
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Header("X-Cache", "MISS")
		c.Next()

		status := rec.Status()
		contentType := rec.Header().Get("Content-Type")
		if status < 200 || status >= 300 || !strings.Contains(contentType, "application/json") {
			return
		}
		if strings.Contains(rec.Header().Get("Cache-Control"), "no-store") {
			return
		}

		entry := CachedResponse{
			StatusCode:  status,
			Headers:     make(map[string]string),
			Body:        rec.body.Bytes(),
			ContentType: contentType,
			CachedAt:    time.Now(),
		}
		for k, v := range rec.Header() {
			if len(v) > 0 && cachedHeaders[http.CanonicalHeaderKey(k)] {
				entry.Headers[k] = v[0]
			}
		}
		if err := cm.SetJSON(ctx, key, entry, cfg.TTL); err != nil {
			log.Error(err, "Cache set error", "cache_key", key)
		}
	}
}

func cacheable(c *gin.Context, skip []string) bool {
	if c.Request.Method != http.MethodGet {
		return false
	}
	if c.GetHeader("Authorization") != "" {
		return false
	}
	if strings.Contains(c.GetHeader("Accept"), "text/html") {
		return false
	}
	for _, p := range skip {
		if strings.HasPrefix(c.Request.URL.Path, p) {
			return false
		}
	}
	return true
}

func responseKey(prefix string, req *http.Request) string {
	h := sha256.New()
	h.Write([]byte(req.URL.Path))
	h.Write([]byte{0})
	h.Write([]byte(req.URL.Query().Encode()))
	h.Write([]byte{0})
	h.Write([]byte(req.Header.Get("Accept-Language")))
	sum := hex.EncodeToString(h.Sum(nil))

	if prefix != "" {
		return prefix + ":response:" + sum
	}
	return "response:" + sum
}
