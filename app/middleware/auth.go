package middleware

import (
	"net/http"
	"strings"

	"trustcompute/internal/model"
	"trustcompute/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware simple token authentication middleware
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip authentication if API key is not configured
		if apiKey == "" {
			c.Next()
			return
		}

		// Get token from Authorization header
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

		if token != apiKey {
			logger.WarnCtx(c.Request.Context(), "unauthorized request, invalid API key")
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				model.NewRPCErrorResponse(nil, model.NewRPCError(model.ErrCodeAccessDenied, "access denied")))
			return
		}

		c.Next()
	}
}
