// Package api exposes the airport catalog, planner sessions, saved routes
// and the signed in user over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/climate"
	"github.com/gilby125/flight-connections/pkg/buildinfo"
	"github.com/gilby125/flight-connections/pkg/cache"
	"github.com/gilby125/flight-connections/pkg/health"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gilby125/flight-connections/pkg/middleware"
	"github.com/gilby125/flight-connections/planner"
	"github.com/gilby125/flight-connections/profile"
	"github.com/gilby125/flight-connections/savedroutes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ClimateFetcher looks up monthly normals for a location.
type ClimateFetcher interface {
	Fetch(ctx context.Context, lat, lng float64) ([]climate.MonthlyClimate, error)
}

// Deps are the collaborators the handlers use. Optional ones disable their
// routes when nil.
type Deps struct {
	Catalog     *airports.Catalog
	Registry    *planner.Registry
	SavedRoutes *savedroutes.Store
	Climate     ClimateFetcher
	Profiles    profile.Store
	Verifier    middleware.TokenVerifier
	Health      *health.HealthChecker
	Cache       *cache.CacheManager
	CacheTTL    time.Duration
	Origins     []string
	Logger      *logger.Logger
}

// RegisterRoutes installs middleware and every route on router.
func RegisterRoutes(router *gin.Engine, deps Deps) {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(cors.New(corsConfig(deps.Origins)))

	router.GET("/health", getHealth(deps.Health))
	router.GET("/health/ready", getReadiness(deps.Health))
	router.GET("/health/live", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": health.StatusUp})
			return
		}
		c.JSON(http.StatusOK, deps.Health.CheckLiveness(c.Request.Context()))
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, buildinfo.Info())
	})

	v1 := router.Group("/api/v1")

	catalog := v1.Group("")
	if deps.Cache != nil {
		ttl := deps.CacheTTL
		if ttl == 0 {
			ttl = cache.ShortTTL
		}
		catalog.Use(middleware.ResponseCache(deps.Cache, middleware.CacheConfig{
			TTL:       ttl,
			KeyPrefix: "api",
			Logger:    log,
		}))
	}
	{
		catalog.GET("/airports", listAirports(deps.Catalog))
		catalog.GET("/airports/:code", getAirport(deps.Catalog))
		catalog.GET("/stats", getStats(deps.Catalog))
	}
	if deps.Climate != nil {
		v1.GET("/airports/:code/climate", getAirportClimate(deps.Catalog, deps.Climate))
	}

	sessions := v1.Group("/sessions")
	{
		sessions.POST("", createSession(deps.Registry))
		sessions.GET("/:id", getSession(deps.Registry))
		sessions.DELETE("/:id", deleteSession(deps.Registry))
		sessions.POST("/:id/sequence", addToSequence(deps.Registry, deps.Catalog))
		sessions.POST("/:id/finalize", finalizeSession(deps.Registry))
		sessions.POST("/:id/reset", resetSession(deps.Registry))
		sessions.PUT("/:id/start-date", setStartDate(deps.Registry))
		if deps.SavedRoutes != nil {
			sessions.POST("/:id/load", loadSavedRoute(deps.Registry, deps.SavedRoutes))
			sessions.POST("/:id/save", saveSessionRoute(deps.Registry, deps.SavedRoutes))
		}
	}

	if deps.SavedRoutes != nil {
		saved := v1.Group("/saved-routes")
		{
			saved.GET("", listSavedRoutes(deps.SavedRoutes))
			saved.POST("", createSavedRoute(deps.SavedRoutes))
			saved.DELETE("/:id", deleteSavedRoute(deps.SavedRoutes))
		}
	}

	if deps.Verifier != nil && deps.Profiles != nil {
		v1.GET("/me", middleware.Auth(deps.Verifier), getMe(deps.Profiles))
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	cfg.ExposeHeaders = []string{middleware.RequestIDHeader, "X-Cache"}
	return cfg
}

func getHealth(h *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.JSON(http.StatusOK, gin.H{"status": health.StatusUp})
			return
		}
		report := h.CheckHealth(c.Request.Context())
		status := http.StatusOK
		if report.Status != health.StatusUp {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

func getReadiness(h *health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.JSON(http.StatusOK, gin.H{"status": health.StatusUp})
			return
		}
		report := h.CheckReadiness(c.Request.Context())
		status := http.StatusOK
		if report.Status != health.StatusUp {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}
