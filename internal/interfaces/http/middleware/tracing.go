package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "ordersync",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin. Spans are named "METHOD route", for
// example "POST /api/v1/connections/:shop_id/disable".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// TracingAttributeInjector adds request_id, tenant_id and shop_id to the
// current span. It must run after Tracing and the JWT middleware.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if requestID := GetRequestID(c); requestID != "" {
				span.SetAttributes(attribute.String("request_id", requestID))
			}
			if tenantID := GetJWTTenantID(c); tenantID != "" {
				span.SetAttributes(attribute.String("tenant_id", tenantID))
			}
			if shopID, err := strconv.ParseInt(c.Param("shop_id"), 10, 64); err == nil {
				span.SetAttributes(attribute.Int64("shop_id", shopID))
			}
		}
		c.Next()
	}
}

// SpanErrorMarker marks spans of 4xx responses as errors. otelgin only
// does so for 5xx. It must run after Tracing.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetStatus(codes.Error, http.StatusText(status))
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}
