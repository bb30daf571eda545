package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prev)
	})

	return sr
}

func findSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.Failf(t, "span not found", "no span named %q", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false, ServiceName: "test-service"}))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_SpanAttributes(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(RequestID(), Tracing())
	router.Use(func(c *gin.Context) {
		c.Set(JWTTenantIDKey, "5f0c6f0e-9c1b-4b51-a2f7-2d2b0c7a1f10")
		c.Next()
	})
	router.Use(TracingAttributeInjector())
	router.POST("/api/v1/connections/:shop_id/disable", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/220011/disable", nil)
	req.Header.Set(RequestIDHeader, "test-request-id-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	span := findSpan(t, sr, "POST /api/v1/connections/:shop_id/disable")

	v, ok := spanAttr(span, "request_id")
	require.True(t, ok)
	assert.Equal(t, "test-request-id-123", v.AsString())

	v, ok = spanAttr(span, "tenant_id")
	require.True(t, ok)
	assert.Equal(t, "5f0c6f0e-9c1b-4b51-a2f7-2d2b0c7a1f10", v.AsString())

	v, ok = spanAttr(span, "shop_id")
	require.True(t, ok)
	assert.Equal(t, int64(220011), v.AsInt64())
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		name   string
		status int
		isErr  bool
	}{
		{"success", http.StatusOK, false},
		{"bad request", http.StatusBadRequest, true},
		{"unauthorized", http.StatusUnauthorized, true},
		{"not found", http.StatusNotFound, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTestTracer(t)

			router := gin.New()
			router.Use(Tracing(), SpanErrorMarker())
			router.GET("/test", func(c *gin.Context) {
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

			span := findSpan(t, sr, "GET /test")
			if tt.isErr {
				assert.Equal(t, codes.Error, span.Status().Code)
			} else {
				assert.NotEqual(t, codes.Error, span.Status().Code)
			}
		})
	}
}

func TestSpanErrorMarker_WithNoSpan(t *testing.T) {
	router := gin.New()
	router.Use(SpanErrorMarker(), TracingAttributeInjector())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
