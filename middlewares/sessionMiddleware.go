package middlewares

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/reelfund/donors_backend/config"
	"github.com/reelfund/donors_backend/models"
	"github.com/reelfund/donors_backend/utils"
)

// SessionMiddleware resolves the token header against the Redis session
// store and loads the admin identity into the request context. Requests
// without a token pass through unauthenticated; route handlers that need an
// operator reject those themselves.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		// Reject forged or expired tokens before touching the session store.
		if _, err := utils.JwtValidate(token); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyToken, token)
		ctx = context.WithValue(ctx, utils.ContextKeyUsername, username)
		ctx = context.WithValue(ctx, utils.ContextKeyOperator, username)

		admin, err := models.GetAdminByUsername(ctx, username)
		if err == nil {
			ctx = utils.SetIsSuperAdminInContext(ctx, admin.Role == models.AdminRoleSuper)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CorrelationIdMiddleware attaches the caller-supplied X-Correlation-Id (or a
// fresh one) to the request context and echoes it on the response, so ops
// runs can be traced across log lines and published events.
func CorrelationIdMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.Request.Header.Get("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", correlationId)
		c.Next()
	}
}
