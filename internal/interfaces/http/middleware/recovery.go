package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

// Recovery converts handler panics into 500 responses.  The stack goes to
// the log, never to the client.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panic",
					logging.String("path", c.Request.URL.Path),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"code": "COMMON_001", "message": "internal error"},
				})
			}
		}()
		c.Next()
	}
}
