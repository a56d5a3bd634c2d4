// README: Request logging middleware; attaches a request id and a scoped slog logger.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"travelmate/internal/logging"
)

const RequestIDHeader = "X-Request-ID"

func Logging(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		ctx, id := logging.EnsureRequestID(c.Request.Context(), c.GetHeader(RequestIDHeader))
		reqLogger := logger.With("request_id", id)
		c.Request = c.Request.WithContext(logging.ContextWithLogger(ctx, reqLogger))
		c.Header(RequestIDHeader, id)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		reqLogger.Info("http request",
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
