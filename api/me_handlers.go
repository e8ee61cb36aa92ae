package api

import (
	"net/http"

	"github.com/gilby125/flight-connections/pkg/logger"
	"github.com/gilby125/flight-connections/pkg/middleware"
	"github.com/gilby125/flight-connections/profile"
	"github.com/gin-gonic/gin"
)

// getMe records the caller's activity and returns their identity and user
// document.
func getMe(store profile.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := c.Request.Context()

		if err := profile.EnsureUserDocument(ctx, store, user.UID, profile.UpdateFromUser(*user)); err != nil {
			logger.WithContext(ctx).Error(err, "Failed to ensure user document", "uid", user.UID)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to save user profile"})
			return
		}

		doc, err := store.Get(ctx, user.UID)
		if err != nil {
			logger.WithContext(ctx).Error(err, "Failed to read user document", "uid", user.UID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read user profile"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user, "profile": doc})
	}
}
