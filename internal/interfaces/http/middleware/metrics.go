package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// HTTPDurationBuckets are latency boundaries in seconds. Trigger calls run a
// whole ingestion, so the upper buckets are wide.
var HTTPDurationBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300}

var (
	attrHTTPMethod = attribute.Key("http.request.method")
	attrHTTPRoute  = attribute.Key("http.route")
	attrHTTPStatus = attribute.Key("http.response.status_code")
)

// httpMetrics holds all HTTP-related metrics instruments.
type httpMetrics struct {
	requestTotal    *telemetry.Counter
	requestDuration *telemetry.Histogram
	activeRequests  metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requestTotal, err := telemetry.NewCounter(meter, telemetry.InstrumentOpts{
		Name:        "http_server_request_total",
		Description: "Total number of HTTP requests",
		Unit:        "{request}",
	})
	if err != nil {
		return nil, err
	}

	requestDuration, err := telemetry.NewHistogram(meter, telemetry.InstrumentOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency distribution in seconds",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &httpMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		activeRequests:  activeRequests,
	}, nil
}

// HTTPMetrics returns a middleware counting requests and recording latency
// per route. The route pattern is used rather than the path to keep
// cardinality bounded.
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		m.activeRequests.Add(ctx, 1)
		c.Next()
		m.activeRequests.Add(ctx, -1)

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		base := []attribute.KeyValue{
			attrHTTPMethod.String(c.Request.Method),
			attrHTTPRoute.String(route),
		}

		m.requestTotal.Inc(ctx, append(base, attrHTTPStatus.Int(c.Writer.Status()))...)
		m.requestDuration.RecordDuration(ctx, time.Since(start), base...)
	}, nil
}
