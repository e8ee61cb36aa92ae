package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gilby125/flight-connections/airports"
	"github.com/gilby125/flight-connections/planner"
	"github.com/gilby125/flight-connections/savedroutes"
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

// CreateSessionRequest seeds a planner session.
type CreateSessionRequest struct {
	URL       string `json:"url"`
	StartDate string `json:"start_date"`
	Timezone  string `json:"timezone"`
}

// SequenceRequest appends one airport.
type SequenceRequest struct {
	Code string `json:"code" binding:"required"`
}

// StartDateRequest changes the first travel date.
type StartDateRequest struct {
	StartDate string `json:"start_date" binding:"required"`
}

// LoadRouteRequest replaces a session's route with a saved one.
type LoadRouteRequest struct {
	SavedRouteID string `json:"saved_route_id" binding:"required"`
}

// sessionFromParam resolves :id or writes a 404.
func sessionFromParam(reg *planner.Registry, c *gin.Context) (*planner.Session, bool) {
	s, err := reg.Get(c.Param("id"))
	if errors.Is(err, planner.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return s, true
}

// preferredLanguage picks the first tag of Accept-Language.
func preferredLanguage(c *gin.Context) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.Und
	}
	return tags[0]
}

func createSession(reg *planner.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSessionRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		opts := planner.CreateOptions{URL: req.URL, Language: preferredLanguage(c)}
		if req.Timezone != "" {
			loc, err := time.LoadLocation(req.Timezone)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone"})
				return
			}
			opts.Location = loc
		}
		if req.StartDate != "" {
			d, err := planner.ParseDate(req.StartDate, opts.Location)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			opts.StartDate = &d
		}

		s, err := reg.Create(opts)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, s.View())
	}
}

func getSession(reg *planner.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := sessionFromParam(reg, c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, s.View())
	}
}

func deleteSession(reg *planner.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := reg.Delete(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// addToSequence appends an active airport. The code is trimmed and
// upper-cased before lookup, matching the uppercase codes of the dataset.
// Appends to a finalized route are ignored and reported through the
// returned state.
func addToSequence(reg *planner.Registry, catalog *airports.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := sessionFromParam(reg, c)
		if !ok {
			return
		}
		var req SequenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		code := strings.ToUpper(strings.TrimSpace(req.Code))
		a, found := catalog.ByIataActive().Get(code)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "airport not found", "code": code})
			return
		}

		s.Do(func(seq *planner.Sequencer) { seq.AddToSequence(a) })
		c.JSON(http.StatusOK, s.View())
	}
}

func finalizeSession(reg *planner.Registry) gin.HandlerFunc {
	return sessionAction(reg, func(seq *planner.Sequencer) { seq.FinalizeRoute() })
}

func resetSession(reg *planner.Registry) gin.HandlerFunc {
	return sessionAction(reg, func(seq *planner.Sequencer) { seq.ResetSequence() })
}

func sessionAction(reg *planner.Registry, fn func(seq *planner.Sequencer)) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := sessionFromParam(reg, c)
		if !ok {
			return
		}
		s.Do(fn)
		c.JSON(http.StatusOK, s.View())
	}
}

func setStartDate(reg *planner.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := sessionFromParam(reg, c)
		if !ok {
			return
		}
		var req StartDateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var parseErr error
		s.Do(func(seq *planner.Sequencer) {
			d, err := planner.ParseDate(req.StartDate, seq.StartDate().Location())
			if err != nil {
				parseErr = err
				return
			}
			seq.SetStartDate(d)
		})
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": parseErr.Error()})
			return
		}
		c.JSON(http.StatusOK, s.View())
	}
}

func loadSavedRoute(reg *planner.Registry, store *savedroutes.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := sessionFromParam(reg, c)
		if !ok {
			return
		}
		var req LoadRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		route, found := store.Get(req.SavedRouteID)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "saved route not found"})
			return
		}

		s.Do(func(seq *planner.Sequencer) { seq.LoadRoute(route) })
		c.JSON(http.StatusOK, s.View())
	}
}

// saveSessionRoute stores the session's current codes. Routes that are too
// short or already saved answer 200 with saved=false.
func saveSessionRoute(reg *planner.Registry, store *savedroutes.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := sessionFromParam(reg, c)
		if !ok {
			return
		}
		var codes []string
		s.Do(func(seq *planner.Sequencer) { codes = seq.Codes() })
		saveCodes(c, store, codes)
	}
}
