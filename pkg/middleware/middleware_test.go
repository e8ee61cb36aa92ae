package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gilby125/flight-connections/identity"
	"github.com/gilby125/flight-connections/pkg/cache"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier map[string]*identity.User

func (s stubVerifier) Verify(token string) (*identity.User, error) {
	if u, ok := s[token]; ok {
		return u, nil
	}
	return nil, errors.New("bad token")
}

func TestAuth(t *testing.T) {
	verifier := stubVerifier{
		"good": {UID: "u1", Email: "a@example.com"},
		"anon": {UID: "u2", IsAnonymous: true},
	}
	r := gin.New()
	r.GET("/me", Auth(verifier), func(c *gin.Context) {
		u, ok := CurrentUser(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"uid": u.UID})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer good", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"anonymous", "Bearer anon", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
				assert.Contains(t, w.Body.String(), `"error"`)
			} else {
				assert.JSONEq(t, `{"uid":"u1"}`, w.Body.String())
			}
		})
	}
}

func TestCurrentUser_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := CurrentUser(c)
	assert.False(t, ok)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestRequestLoggerAndRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(logger.Config{Level: "info", Format: "json"}, &buf)

	r := gin.New()
	r.Use(RequestID(), RequestLogger(log), Recovery(log))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, buf.String(), `"path":"/ok"`)
	assert.Contains(t, buf.String(), `"query":"x=1"`)

	buf.Reset()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, buf.String(), "Panic recovered")
	assert.Contains(t, buf.String(), `"status":500`)
}

func newCacheManager(t *testing.T) (*cache.CacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewCacheManager(cache.NewRedisCache(client, "test")), mr
}

func TestResponseCache(t *testing.T) {
	cm, _ := newCacheManager(t)
	calls := 0

	r := gin.New()
	r.Use(ResponseCache(cm, CacheConfig{TTL: time.Minute, KeyPrefix: "api", SkipPaths: []string{"/live"}, Logger: logger.Discard()}))
	r.GET("/stats", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.GET("/missing", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusNotFound, gin.H{"error": "nope"})
	})
	r.GET("/live", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})

	get := func(path string, header ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if len(header) == 2 {
			req.Header.Set(header[0], header[1])
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := get("/stats")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := get("/stats")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	get("/stats", "Authorization", "Bearer x")
	assert.Equal(t, 2, calls, "authenticated requests bypass the cache")

	get("/missing")
	get("/missing")
	assert.Equal(t, 4, calls, "errors are not cached")

	get("/live")
	get("/live")
	assert.Equal(t, 6, calls, "skipped paths are not cached")
}

func TestResponseCache_NoStore(t *testing.T) {
	cm, _ := newCacheManager(t)
	calls := 0

	r := gin.New()
	r.Use(ResponseCache(cm, CacheConfig{TTL: time.Minute, Logger: logger.Discard()}))
	r.GET("/warming", func(c *gin.Context) {
		calls++
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/warming", nil))
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	}
	assert.Equal(t, 2, calls)
}

func TestResponseKey_QueryOrderInsensitive(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/airports?q=par&limit=5", nil)
	b := httptest.NewRequest(http.MethodGet, "/airports?limit=5&q=par", nil)
	assert.Equal(t, responseKey("p", a), responseKey("p", b))

	c := httptest.NewRequest(http.MethodGet, "/airports?q=lon", nil)
	assert.NotEqual(t, responseKey("p", a), responseKey("p", c))
}
