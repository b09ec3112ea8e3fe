package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

func bearerToken(header string) string {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// SessionMiddleware resolves the bearer token to an active user and stores the session in the
// request context. Requests without a token pass through; RequireSession rejects them.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}
		token := bearerToken(auth)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := utils.ParseClaims(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		// role and active flag come from the stored user, not the token
		user, err := models.GetUser(c.Request.Context(), claims.ID)
		if err != nil {
			if !errors.Is(err, models.ErrReferenceNotFound) {
				config.LogError(config.GetLogger(), "sessionMiddleware.go", "SessionMiddleware", "loading session user", claims.ID, err)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !user.Active() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user is disabled"})
			return
		}

		ctx := utils.SetUsernameInContext(c.Request.Context(), user.Username)
		ctx = utils.SetUserIdInContext(ctx, user.ID)
		ctx = utils.SetUserRoleInContext(ctx, string(user.Role))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
