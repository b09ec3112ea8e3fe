package middlewares

import (
	"net/http"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/gin-gonic/gin"
)

// RequirePermission allows the request only when the session role may perform action on module.
func RequirePermission(module models.PermissionModule, action models.PermissionAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := utils.GetUserRoleFromContext(c.Request.Context())
		if !ok || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !models.HasPermission(models.UserRole(role), module, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "permission denied: " + string(action) + " " + string(module),
			})
			return
		}
		c.Next()
	}
}
