package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMeterReader(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})
	return mp, reader
}

func findMetricByName(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetrics_RecordsRoutePattern(t *testing.T) {
	mp, reader := newTestMeterReader(t)
	mw, err := HTTPMetrics(mp.Meter("http.server"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	router.POST("/api/v1/connections/:shop_id/disable", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for _, shop := range []string{"1", "2", "3"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/connections/"+shop+"/disable", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	total := findMetricByName(t, reader, "http_server_request_total")
	require.NotNil(t, total)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)

	route, ok := sum.DataPoints[0].Attributes.Value(attrHTTPRoute)
	require.True(t, ok)
	assert.Equal(t, "/api/v1/connections/:shop_id/disable", route.AsString())

	duration := findMetricByName(t, reader, "http_server_request_duration_seconds")
	require.NotNil(t, duration)
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(3), hist.DataPoints[0].Count)
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	mp, reader := newTestMeterReader(t)
	mw, err := HTTPMetrics(mp.Meter("http.server"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	total := findMetricByName(t, reader, "http_server_request_total")
	require.NotNil(t, total)
	sum := total.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)

	route, _ := sum.DataPoints[0].Attributes.Value(attrHTTPRoute)
	assert.Equal(t, "unknown", route.AsString())
	status, _ := sum.DataPoints[0].Attributes.Value(attrHTTPStatus)
	assert.Equal(t, int64(http.StatusNotFound), status.AsInt64())
}
