// README: Recovery middleware; turns handler panics into a logged 500.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"travelmate/internal/logging"
)

func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.FromContext(c.Request.Context(), logger).Error("panic recovered",
					"panic", rec,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}
