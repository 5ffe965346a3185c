package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/okoth/userhub/internal/domain/user"
)

// RequireRole gates a route on the privilege ordering: the acting role must
// rank at least as high as minimum. Target-aware decisions (ceilings,
// self-access) stay in the handlers via the authz package.
func (m *AuthMiddleware) RequireRole(minimum user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "unauthorized",
					"message": "Missing identity context",
				},
			})
			return
		}
		if !role.AtLeast(minimum) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "forbidden",
					"message": "Insufficient role for this operation",
				},
			})
			return
		}
		c.Next()
	}
}
