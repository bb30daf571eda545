package logger

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ginLoggerKey = "logger"

// redactedQueryParams never reach the access log. code is the one-time
// marketplace authorization code delivered to the OAuth callback.
var redactedQueryParams = []string{"code", "access_token", "refresh_token"}

// GinMiddleware returns a gin middleware that logs HTTP requests. The
// request-scoped logger is stored both in the gin context and in the request
// context so services called by handlers log with the same request_id.
func GinMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		ctx := WithContext(c.Request.Context(), logger.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		))
		ctx, reqLogger := WithScope(ctx, Scope{RequestID: c.GetString("request_id")})
		c.Set(ginLoggerKey, reqLogger)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if route := c.FullPath(); route != "" {
			fields = append(fields, zap.String("route", route))
		}
		if query := redactQuery(c.Request.URL.RawQuery); query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		switch {
		case status >= 500:
			reqLogger.Error("HTTP Request", fields...)
		case status >= 400:
			reqLogger.Warn("HTTP Request", fields...)
		default:
			reqLogger.Info("HTTP Request", fields...)
		}
	}
}

func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparseable]"
	}
	redacted := false
	for _, key := range redactedQueryParams {
		if _, ok := values[key]; ok {
			values.Set(key, "REDACTED")
			redacted = true
		}
	}
	if !redacted {
		return raw
	}
	return values.Encode()
}

// Recovery returns a gin middleware that recovers from panics and logs them
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.String("request_id", c.GetString("request_id")),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", err),
					zap.Stack("stacktrace"),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   gin.H{"code": "ERR_INTERNAL", "message": "internal server error"},
				})
			}
		}()
		c.Next()
	}
}

// GetGinLogger retrieves the request logger from the gin context
func GetGinLogger(c *gin.Context) *zap.Logger {
	if l, ok := c.Value(ginLoggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
