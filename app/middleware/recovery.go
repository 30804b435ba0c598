package middleware

import (
	"net/http"
	"runtime/debug"

	"trustcompute/internal/model"
	"trustcompute/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Recovery middleware catches panic and converts it to a JSON-RPC error response
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()

				logger.ErrorCtx(c.Request.Context(),
					"panic recovered: %v\nstack:\n%s",
					err,
					string(stack),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					model.NewRPCErrorResponse(nil, model.NewRPCError(model.ErrCodeUnknown, "internal server error")))
			}
		}()

		c.Next()
	}
}
