package api

import (
	"net/http"
	"strings"

	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gilby125/flight-connections/savedroutes"
	"github.com/gin-gonic/gin"
)

// SaveRouteRequest saves a route given by its codes. Codes are trimmed and
// upper-cased before saving, so "jfk" is stored as JFK.
type SaveRouteRequest struct {
	Codes []string `json:"codes" binding:"required"`
}

func listSavedRoutes(store *savedroutes.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		routes := store.Routes()
		if routes == nil {
			routes = []savedroutes.SavedRoute{}
		}
		c.JSON(http.StatusOK, gin.H{"saved_routes": routes})
	}
}

func createSavedRoute(store *savedroutes.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SaveRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		codes := make([]string, 0, len(req.Codes))
		for _, code := range req.Codes {
			codes = append(codes, strings.ToUpper(strings.TrimSpace(code)))
		}
		saveCodes(c, store, codes)
	}
}

func saveCodes(c *gin.Context, store *savedroutes.Store, codes []string) {
	saved, err := store.SaveRoute(c.Request.Context(), codes)
	if err != nil {
		logger.WithContext(c.Request.Context()).Error(err, "Failed to save route")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save route"})
		return
	}

	status := http.StatusOK
	if saved {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"saved": saved, "saved_routes": store.Routes()})
}

func deleteSavedRoute(store *savedroutes.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.DeleteRoute(c.Request.Context(), c.Param("id")); err != nil {
			logger.WithContext(c.Request.Context()).Error(err, "Failed to delete saved route")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete saved route"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
