package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gin-gonic/gin"
)

const maxListLimit = 500

// listAirports serves GET /airports?active=&q=&limit=. Only active airports
// are listed unless active=false.
func listAirports(catalog *airports.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		noStoreUntilLoaded(c, catalog)
		activeOnly := true
		if raw := c.Query("active"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "active must be true or false"})
				return
			}
			activeOnly = v
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 || v > maxListLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
				return
			}
			limit = v
		}

		var out []airports.Airport
		if q := strings.TrimSpace(c.Query("q")); q != "" {
			out = catalog.Search(q, limit, activeOnly)
		} else {
			if activeOnly {
				out = catalog.ActiveAirports()
			} else {
				out = catalog.Airports()
			}
			if limit > 0 && len(out) > limit {
				out = out[:limit]
			}
		}
		if out == nil {
			out = []airports.Airport{}
		}

		c.JSON(http.StatusOK, gin.H{
			"loaded":   catalog.Loaded(),
			"count":    len(out),
			"airports": out,
		})
	}
}

// noStoreUntilLoaded marks the response uncacheable while the catalog is
// still empty.
func noStoreUntilLoaded(c *gin.Context, catalog *airports.Catalog) {
	if !catalog.Loaded() {
		c.Header("Cache-Control", "no-store")
	}
}

// lookupAirport resolves :code against all airports, active or not. The code
// is trimmed and upper-cased first since catalog codes are stored uppercase.
func lookupAirport(catalog *airports.Catalog, c *gin.Context) (airports.Airport, bool) {
	noStoreUntilLoaded(c, catalog)
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	a, ok := catalog.ByIataAll().Get(code)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "airport not found", "code": code})
	}
	return a, ok
}

func getAirport(catalog *airports.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := lookupAirport(catalog, c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func getStats(catalog *airports.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		noStoreUntilLoaded(c, catalog)
		c.JSON(http.StatusOK, catalog.Stats())
	}
}

func getAirportClimate(catalog *airports.Catalog, fetcher ClimateFetcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := lookupAirport(catalog, c)
		if !ok {
			return
		}
		if !a.HasCoordinates() {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "airport has no coordinates", "code": a.IataCode})
			return
		}

		months, err := fetcher.Fetch(c.Request.Context(), *a.Latitude, *a.Longitude)
		if err != nil {
			logger.WithContext(c.Request.Context()).Error(err, "Climate lookup failed", "code", a.IataCode)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch climate data"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": a.IataCode, "months": months})
	}
}
