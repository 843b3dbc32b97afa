package middleware

import (
	"net/http"
	"time"

	"RoomChat/logger"
	"RoomChat/tools/apiresp"
	"RoomChat/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinLogger logs one line per request.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("http", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("http", fields...)
		default:
			logger.Debug("http", fields...)
		}
	}
}

// GinRecovery answers 500 instead of dropping the connection on panic.
func GinRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("http panic", zap.String("path", c.Request.URL.Path), zap.Error(errs.ErrPanic(r)))
				apiresp.GinError(c, errs.ErrInternal.Wrap())
			}
		}()
		c.Next()
	}
}
