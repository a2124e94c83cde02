package middleware

import (
	"github.com/gin-gonic/gin"

	"creatorfund-core/pkg/errutil"
)

// Identity headers resolved by the upstream auth layer. The core never
// parses credentials itself.
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"

	RoleAdmin = "admin"
)

const (
	userIDKey   = "identity.user_id"
	userRoleKey = "identity.role"
)

// Identity copies the gateway-resolved user headers into the gin context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(UserIDHeader); id != "" {
			c.Set(userIDKey, id)
		}
		if role := c.GetHeader(UserRoleHeader); role != "" {
			c.Set(userRoleKey, role)
		}
		c.Next()
	}
}

// UserID returns the authenticated user id or an Unauthorized error when
// the upstream layer supplied none.
func UserID(c *gin.Context) (string, error) {
	id := c.GetString(userIDKey)
	if id == "" {
		return "", errutil.Unauthorized("missing authenticated user", nil)
	}
	return id, nil
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(userRoleKey) == RoleAdmin
}

// RequireAdmin aborts non-admin requests on administrator-only routes.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			_ = c.Error(errutil.Forbidden("administrator role required", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
