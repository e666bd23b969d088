package middlewares

import (
	"net/http"

	"bitbucket.org/mmdatafocus/obligations_backend/models"
	"bitbucket.org/mmdatafocus/obligations_backend/utils"
	"github.com/gin-gonic/gin"
)

// BusinessContextMiddleware resolves the session user and stamps the tenant
// onto the request context. Everything downstream reads the business id from
// context; the tenant guard scopes queries with it.
func BusinessContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := utils.GetUsernameFromContext(c.Request.Context())
		if !ok || username == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		user, err := models.GetUserByUsername(c.Request.Context(), username)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if user.IsActive == nil || !*user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "user is disabled"})
			c.Abort()
			return
		}

		ctx := utils.SetUserIdInContext(c.Request.Context(), user.ID)
		ctx = utils.SetUserNameInContext(ctx, user.Name)
		if user.Role == models.UserRoleAdmin {
			ctx = utils.SetIsAdminInContext(ctx, true)
		} else {
			ctx = utils.SetBusinessIdInContext(ctx, user.BusinessId)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
