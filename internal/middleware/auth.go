package middleware

import (
	"net/http"

	"github.com/acme/enrollment/internal/policy"

	"github.com/gin-gonic/gin"
)

// RequireAuth sends anonymous callers to the login page.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Allow admits callers whose role may perform the action. Everyone else is
// quietly sent back to their dashboard.
func Allow(action policy.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		if !policy.Authorize(u, action, policy.Any) {
			c.Redirect(http.StatusFound, "/dashboard")
			c.Abort()
			return
		}
		c.Next()
	}
}
