package middleware

import (
	"net/http"
	"strings"

	"github.com/gilby125/flight-connections/identity"
	"github.com/gin-gonic/gin"
)

const userKey = "identity_user"

// TokenVerifier turns a bearer token into a user.
type TokenVerifier interface {
	Verify(token string) (*identity.User, error)
}

// Auth requires a valid bearer token from a non-anonymous user. The user is
// available to handlers through CurrentUser.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			unauthorized(c, "Unauthorized: bearer token required")
			return
		}

		user, err := verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			unauthorized(c, "Unauthorized: invalid token")
			return
		}
		if user.IsAnonymous {
			unauthorized(c, "Unauthorized: anonymous users are not accepted")
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) (*identity.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*identity.User)
	return u, ok && u != nil
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="flight-connections"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
