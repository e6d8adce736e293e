package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/errors"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error attached with c.Error.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last()

		statusCode := errors.HTTPStatusFromError(err.Err)
		message := err.Error()
		if statusCode >= 500 {
			log.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err.Err))
			message = "internal server error"
		}

		c.JSON(statusCode, gin.H{
			"error": message,
		})
	}
}
