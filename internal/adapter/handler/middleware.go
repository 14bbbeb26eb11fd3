package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/core/session"
)

const (
	headerRequestID = "X-Request-ID"
	headerUser      = "X-User"
	headerRole      = "X-Role"

	requestIDKey    = "request_id"
	requestIDMaxLen = 64
)

// RequestID echoes the caller's X-Request-ID or issues a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(headerRequestID)
		if rid == "" || len(rid) > requestIDMaxLen {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Header(headerRequestID, rid)
		c.Next()
	}
}

// Actor puts the user named by the X-User and X-Role headers on the request
// context so that recorded movements carry who performed them.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := c.GetHeader(headerUser); user != "" {
			ctx := session.WithActor(c.Request.Context(), session.Actor{
				Username: user,
				Role:     c.GetHeader(headerRole),
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("request rejected", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}
