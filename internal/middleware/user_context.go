package middleware

import (
	"github.com/acme/enrollment/internal/auth"
	"github.com/acme/enrollment/internal/models"

	"github.com/gin-gonic/gin"
)

const currentUserKey = "CurrentUser"

// InjectUser resolves the session's user once per request.
func InjectUser(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u, ok := svc.CurrentUser(c); ok {
			c.Set(currentUserKey, u)
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}
